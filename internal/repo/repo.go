package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"eventpass/internal/model"
)

var (
	ErrEventNotFound         = errors.New("event not found")
	ErrDuplicateRegistration = errors.New("duplicate registration")
	ErrTokenNotFound         = errors.New("token not found")
	ErrAlreadyCheckedIn      = errors.New("already checked in")
	ErrTokenConflict         = errors.New("token already issued")
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"

	constraintEventEmail = "registrations_event_id_email_key"
	constraintToken      = "registrations_token_key"
)

// Repository is the single shared store of events and their registrations.
// Implementations must make AddRegistration and CheckIn atomic with respect
// to concurrent callers.
type Repository interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEventByID(ctx context.Context, id string) (*model.Event, error)
	GetAllEvents(ctx context.Context) ([]model.Event, error)
	ListEventSummaries(ctx context.Context) ([]model.EventSummary, error)
	UpdateEvent(ctx context.Context, e *model.Event) error
	DeleteEvent(ctx context.Context, id string) error

	AddRegistration(ctx context.Context, eventID string, reg *model.Registration) error
	HasRegistration(ctx context.Context, eventID, email string) (bool, error)
	FindEventByToken(ctx context.Context, token string) (*model.Event, error)
	CheckIn(ctx context.Context, token string, at time.Time) (*model.Attendee, error)

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		if err := r.execFile(file); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	for _, file := range files {
		if err := r.execFile(file); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

func (r *repository) execFile(file string) error {
	sqlBytes, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	_, err = r.db.Master.ExecContext(context.Background(), string(sqlBytes))
	return err
}

func (r *repository) CreateEvent(ctx context.Context, e *model.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	query := `
		INSERT INTO events (id, name, date, time, venue, image)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	row := r.db.Master.QueryRowContext(ctx, query, e.ID, e.Name, e.Date, e.Time, e.Venue, e.Image)
	if err := row.Scan(&e.CreatedAt, &e.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	if e.Registrations == nil {
		e.Registrations = []model.Registration{}
	}
	return nil
}

func (r *repository) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	query := `
		SELECT id, name, date, time, venue, image, created_at, updated_at
		FROM events WHERE id = $1
	`
	var e model.Event
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.Name, &e.Date, &e.Time, &e.Venue, &e.Image, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	regs, err := r.registrationsFor(ctx, `WHERE event_id = $1`, id)
	if err != nil {
		return nil, err
	}
	e.Registrations = regs[id]
	if e.Registrations == nil {
		e.Registrations = []model.Registration{}
	}
	return &e, nil
}

func (r *repository) GetAllEvents(ctx context.Context) ([]model.Event, error) {
	query := `
		SELECT id, name, date, time, venue, image, created_at, updated_at
		FROM events
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(
			&e.ID,
			&e.Name,
			&e.Date,
			&e.Time,
			&e.Venue,
			&e.Image,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	regs, err := r.registrationsFor(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Registrations = regs[events[i].ID]
		if events[i].Registrations == nil {
			events[i].Registrations = []model.Registration{}
		}
	}
	return events, nil
}

// registrationsFor loads registrations grouped by event id, in registration order.
func (r *repository) registrationsFor(ctx context.Context, where string, args ...any) (map[string][]model.Registration, error) {
	query := `
		SELECT event_id, id, name, email, phone, token, qr_code, checked_in, registered_at, checked_in_at
		FROM registrations ` + where + `
		ORDER BY seq ASC
	`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get registrations: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]model.Registration)
	for rows.Next() {
		var (
			eventID     string
			reg         model.Registration
			checkedInAt sql.NullTime
		)
		if err := rows.Scan(
			&eventID,
			&reg.ID,
			&reg.Name,
			&reg.Email,
			&reg.Phone,
			&reg.Token,
			&reg.QRCode,
			&reg.CheckedIn,
			&reg.RegisteredAt,
			&checkedInAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		if checkedInAt.Valid {
			t := checkedInAt.Time
			reg.CheckedInAt = &t
		}
		out[eventID] = append(out[eventID], reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate registrations: %w", err)
	}
	return out, nil
}

func (r *repository) ListEventSummaries(ctx context.Context) ([]model.EventSummary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM events ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	out := []model.EventSummary{}
	for rows.Next() {
		var s model.EventSummary
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, fmt.Errorf("failed to scan event summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repository) UpdateEvent(ctx context.Context, e *model.Event) error {
	query := `
		UPDATE events
		SET name = $1, date = $2, time = $3, venue = $4, image = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at
	`
	err := r.db.Master.QueryRowContext(ctx, query, e.Name, e.Date, e.Time, e.Venue, e.Image, e.ID).Scan(&e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

// DeleteEvent removes the event; registrations go with it through ON DELETE CASCADE.
func (r *repository) DeleteEvent(ctx context.Context, id string) error {
	res, err := r.db.Master.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// AddRegistration locks the event row so the duplicate check and the insert
// see the same registration list.
func (r *repository) AddRegistration(ctx context.Context, eventID string, reg *model.Registration) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT id
		FROM events
		WHERE id = $1
		FOR UPDATE
	`, eventID).Scan(&id)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEventNotFound
		}
		return fmt.Errorf("failed to lock event: %w", err)
	}

	var existing int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM registrations
		WHERE event_id = $1 AND email = $2
	`, eventID, reg.Email).Scan(&existing)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to check duplicate registration: %w", err)
	}
	if existing > 0 {
		_ = tx.Rollback()
		return ErrDuplicateRegistration
	}

	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO registrations (id, event_id, name, email, phone, token, qr_code, checked_in, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)
		RETURNING registered_at
	`, reg.ID, eventID, reg.Name, reg.Email, reg.Phone, reg.Token, reg.QRCode, reg.RegisteredAt).Scan(&reg.RegisteredAt)
	if err != nil {
		_ = tx.Rollback()
		return mapInsertError(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func mapInsertError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == pqUniqueViolation && pqErr.Constraint == constraintEventEmail:
			return ErrDuplicateRegistration
		case pqErr.Code == pqUniqueViolation && pqErr.Constraint == constraintToken:
			return ErrTokenConflict
		case pqErr.Code == pqForeignKeyViolation:
			return ErrEventNotFound
		}
	}
	return fmt.Errorf("failed to create registration: %w", err)
}

func (r *repository) HasRegistration(ctx context.Context, eventID, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM registrations WHERE event_id = $1 AND email = $2)
	`, eventID, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check registration: %w", err)
	}
	return exists, nil
}

func (r *repository) FindEventByToken(ctx context.Context, token string) (*model.Event, error) {
	var eventID string
	err := r.db.QueryRowContext(ctx, `SELECT event_id FROM registrations WHERE token = $1`, token).Scan(&eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find registration by token: %w", err)
	}
	e, err := r.GetEventByID(ctx, eventID)
	if errors.Is(err, ErrEventNotFound) {
		return nil, ErrTokenNotFound
	}
	return e, err
}

// CheckIn flips checked_in only when it is still false, so concurrent scans of
// one token cannot both succeed.
func (r *repository) CheckIn(ctx context.Context, token string, at time.Time) (*model.Attendee, error) {
	query := `
		UPDATE registrations r
		SET checked_in = TRUE, checked_in_at = $2
		FROM events e
		WHERE r.event_id = e.id AND r.token = $1 AND r.checked_in = FALSE
		RETURNING r.name, r.email, r.phone, r.checked_in_at, e.id, e.name, e.date, e.time, e.venue
	`
	var (
		reg         model.Registration
		ev          model.Event
		checkedInAt time.Time
	)
	err := r.db.Master.QueryRowContext(ctx, query, token, at).Scan(
		&reg.Name, &reg.Email, &reg.Phone, &checkedInAt,
		&ev.ID, &ev.Name, &ev.Date, &ev.Time, &ev.Venue,
	)
	if err == nil {
		reg.CheckedIn = true
		reg.CheckedInAt = &checkedInAt
		return model.NewAttendee(&ev, &reg), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check in: %w", err)
	}

	var checked bool
	err = r.db.Master.QueryRowContext(ctx, `SELECT checked_in FROM registrations WHERE token = $1`, token).Scan(&checked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registration state: %w", err)
	}
	return nil, ErrAlreadyCheckedIn
}

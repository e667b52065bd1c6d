package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"eventpass/internal/metrics"
	"eventpass/internal/model"
	"eventpass/internal/repo"
	"eventpass/internal/ticket"
)

var (
	ErrEventNotFound         = errors.New("event not found")
	ErrDuplicateRegistration = errors.New("email already registered for this event")
	ErrInvalidToken          = errors.New("invalid ticket")
	ErrAlreadyCheckedIn      = errors.New("ticket already checked in")
)

// issueAttempts bounds re-issuing when the store reports a token collision.
const issueAttempts = 3

type RegisterInput struct {
	EventID string
	Name    string
	Email   string
	Phone   string
}

// Desk runs registration and door validation against the shared store.
// It keeps no registration state of its own.
type Desk struct {
	repo     repo.Repository
	issuer   ticket.Issuer
	notifier Notifier
	metrics  *metrics.Metrics
	log      *zerolog.Logger
	now      func() time.Time
}

func NewDesk(r repo.Repository, issuer ticket.Issuer, notifier Notifier, m *metrics.Metrics, log *zerolog.Logger) *Desk {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Desk{
		repo:     r,
		issuer:   issuer,
		notifier: notifier,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// NormalizeEmail is the form emails are stored and compared in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (d *Desk) Register(ctx context.Context, in RegisterInput) (*model.Registration, error) {
	email := NormalizeEmail(in.Email)

	event, err := d.repo.GetEventByID(ctx, in.EventID)
	if err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			d.metrics.IncrementRegistrationFailures("event_not_found")
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to load event: %w", err)
	}

	exists, err := d.repo.HasRegistration(ctx, event.ID, email)
	if err != nil {
		return nil, err
	}
	if exists {
		d.metrics.IncrementRegistrationFailures("duplicate")
		return nil, ErrDuplicateRegistration
	}

	var reg *model.Registration
	for attempt := 1; ; attempt++ {
		t, err := d.issuer.Issue()
		if err != nil {
			d.metrics.IncrementRegistrationFailures("render")
			return nil, fmt.Errorf("failed to issue ticket: %w", err)
		}

		reg = &model.Registration{
			Name:         strings.TrimSpace(in.Name),
			Email:        email,
			Phone:        strings.TrimSpace(in.Phone),
			Token:        t.Token,
			QRCode:       t.CodeImage,
			RegisteredAt: d.now().UTC(),
		}
		err = d.repo.AddRegistration(ctx, event.ID, reg)
		if err == nil {
			break
		}

		switch {
		case errors.Is(err, repo.ErrTokenConflict) && attempt < issueAttempts:
			d.log.Warn().Str("event_id", event.ID).Int("attempt", attempt).Msg("ticket token collision, reissuing")
			continue
		case errors.Is(err, repo.ErrDuplicateRegistration):
			d.metrics.IncrementRegistrationFailures("duplicate")
			return nil, ErrDuplicateRegistration
		case errors.Is(err, repo.ErrEventNotFound):
			d.metrics.IncrementRegistrationFailures("event_not_found")
			return nil, ErrEventNotFound
		default:
			return nil, fmt.Errorf("failed to store registration: %w", err)
		}
	}

	d.metrics.IncrementRegistrations()
	d.log.Info().
		Str("event_id", event.ID).
		Str("registration_id", reg.ID).
		Str("token", tokenPrefix(reg.Token)).
		Msg("registration created")

	if err := d.notifier.TicketIssued(ctx, TicketIssued{
		RegistrationID: reg.ID,
		EventID:        event.ID,
		EventName:      event.Name,
		EventDate:      event.When(),
		EventVenue:     event.Venue,
		Name:           reg.Name,
		Email:          reg.Email,
		Token:          reg.Token,
	}); err != nil {
		d.log.Warn().Err(err).Str("registration_id", reg.ID).Msg("failed to queue ticket notification")
	}

	return reg, nil
}

// Validate admits the holder of token exactly once. The transition itself is
// a single conditional update in the store.
func (d *Desk) Validate(ctx context.Context, token string) (*model.Attendee, error) {
	start := time.Now()
	defer func() {
		d.metrics.ObserveCheckInDuration(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	token = strings.TrimSpace(token)
	if token == "" {
		d.metrics.IncrementCheckIns(metrics.OutcomeInvalidToken)
		return nil, ErrInvalidToken
	}

	att, err := d.repo.CheckIn(ctx, token, d.now().UTC())
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrTokenNotFound):
		d.metrics.IncrementCheckIns(metrics.OutcomeInvalidToken)
		return nil, ErrInvalidToken
	case errors.Is(err, repo.ErrAlreadyCheckedIn):
		d.metrics.IncrementCheckIns(metrics.OutcomeAlreadyChecked)
		d.log.Info().Str("token", tokenPrefix(token)).Msg("ticket scanned again")
		return nil, ErrAlreadyCheckedIn
	default:
		d.metrics.IncrementCheckIns(metrics.OutcomeError)
		return nil, fmt.Errorf("failed to check in: %w", err)
	}

	d.metrics.IncrementCheckIns(metrics.OutcomeAdmitted)
	d.log.Info().
		Str("event_id", att.EventID).
		Str("token", tokenPrefix(token)).
		Msg("attendee checked in")

	if err := d.notifier.CheckedIn(ctx, CheckedIn{
		EventID:     att.EventID,
		EventName:   att.EventName,
		Name:        att.Name,
		Email:       att.Email,
		CheckedInAt: *att.CheckedInAt,
	}); err != nil {
		d.log.Warn().Err(err).Str("event_id", att.EventID).Msg("failed to queue check-in notification")
	}

	return att, nil
}

// tokenPrefix keeps full tokens out of logs.
func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}

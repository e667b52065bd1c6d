package repo

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
	"github.com/wb-go/wbf/dbpg"

	"eventpass/internal/model"
)

type PostgresRepoSuite struct {
	suite.Suite
	db   *sql.DB
	mock sqlmock.Sqlmock
	repo *repository
}

func (s *PostgresRepoSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	s.Require().NoError(err)
	log := zerolog.Nop()
	s.db, s.mock = db, mock
	s.repo = &repository{db: &dbpg.DB{Master: db}, log: &log}
}

func (s *PostgresRepoSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func TestPostgresRepoSuite(t *testing.T) {
	suite.Run(t, new(PostgresRepoSuite))
}

func (s *PostgresRepoSuite) newReg() *model.Registration {
	return &model.Registration{
		Name:         "Ada",
		Email:        "ada@x.com",
		Phone:        "1234567890",
		Token:        "tok",
		QRCode:       "data:image/png;base64,AAAA",
		RegisteredAt: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (s *PostgresRepoSuite) TestAddRegistration_Success() {
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`FOR UPDATE`).WithArgs("ev-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ev-1"))
	s.mock.ExpectQuery(`SELECT COUNT\(\*\)`).WithArgs("ev-1", "ada@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	s.mock.ExpectQuery(`INSERT INTO registrations`).
		WillReturnRows(sqlmock.NewRows([]string{"registered_at"}).AddRow(now))
	s.mock.ExpectCommit()

	reg := s.newReg()
	err := s.repo.AddRegistration(context.Background(), "ev-1", reg)

	s.Require().NoError(err)
	s.NotEmpty(reg.ID)
	s.Equal(now, reg.RegisteredAt)
}

func (s *PostgresRepoSuite) TestAddRegistration_EventMissing() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`FOR UPDATE`).WithArgs("ev-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	s.mock.ExpectRollback()

	err := s.repo.AddRegistration(context.Background(), "ev-1", s.newReg())

	s.ErrorIs(err, ErrEventNotFound)
}

func (s *PostgresRepoSuite) TestAddRegistration_DuplicateEmail() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`FOR UPDATE`).WithArgs("ev-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ev-1"))
	s.mock.ExpectQuery(`SELECT COUNT\(\*\)`).WithArgs("ev-1", "ada@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	s.mock.ExpectRollback()

	err := s.repo.AddRegistration(context.Background(), "ev-1", s.newReg())

	s.ErrorIs(err, ErrDuplicateRegistration)
}

func (s *PostgresRepoSuite) TestAddRegistration_UniqueViolationMapsToDuplicate() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`FOR UPDATE`).WithArgs("ev-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ev-1"))
	s.mock.ExpectQuery(`SELECT COUNT\(\*\)`).WithArgs("ev-1", "ada@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	s.mock.ExpectQuery(`INSERT INTO registrations`).
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: constraintEventEmail})
	s.mock.ExpectRollback()

	err := s.repo.AddRegistration(context.Background(), "ev-1", s.newReg())

	s.ErrorIs(err, ErrDuplicateRegistration)
}

func (s *PostgresRepoSuite) TestCheckIn_Success() {
	at := time.Date(2026, 11, 2, 18, 5, 0, 0, time.UTC)
	s.mock.ExpectQuery(`UPDATE registrations r`).WithArgs("tok", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{
			"name", "email", "phone", "checked_in_at", "id", "name", "date", "time", "venue",
		}).AddRow("Ada", "ada@x.com", "1234567890", at, "ev-1", "Go Meetup", "2026-11-02", "18:30", "Hall A"))

	att, err := s.repo.CheckIn(context.Background(), "tok", at)

	s.Require().NoError(err)
	s.Equal("Ada", att.Name)
	s.Equal("Go Meetup", att.EventName)
	s.Equal("2026-11-02 18:30", att.EventDate)
	s.True(att.CheckedIn)
	s.Require().NotNil(att.CheckedInAt)
	s.Equal(at, *att.CheckedInAt)
}

func (s *PostgresRepoSuite) TestCheckIn_AlreadyCheckedIn() {
	s.mock.ExpectQuery(`UPDATE registrations r`).WithArgs("tok", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	s.mock.ExpectQuery(`SELECT checked_in FROM registrations`).WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"checked_in"}).AddRow(true))

	att, err := s.repo.CheckIn(context.Background(), "tok", time.Now())

	s.ErrorIs(err, ErrAlreadyCheckedIn)
	s.Nil(att)
}

func (s *PostgresRepoSuite) TestCheckIn_UnknownToken() {
	s.mock.ExpectQuery(`UPDATE registrations r`).WithArgs("nope", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	s.mock.ExpectQuery(`SELECT checked_in FROM registrations`).WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"checked_in"}))

	_, err := s.repo.CheckIn(context.Background(), "nope", time.Now())

	s.ErrorIs(err, ErrTokenNotFound)
}

func (s *PostgresRepoSuite) TestCheckIn_DriverError() {
	s.mock.ExpectQuery(`UPDATE registrations r`).WillReturnError(errors.New("connection reset"))

	_, err := s.repo.CheckIn(context.Background(), "tok", time.Now())

	s.Error(err)
	s.NotErrorIs(err, ErrTokenNotFound)
	s.NotErrorIs(err, ErrAlreadyCheckedIn)
}

func (s *PostgresRepoSuite) TestDeleteEvent() {
	s.mock.ExpectExec(`DELETE FROM events`).WithArgs("ev-1").WillReturnResult(sqlmock.NewResult(0, 1))
	s.NoError(s.repo.DeleteEvent(context.Background(), "ev-1"))

	s.mock.ExpectExec(`DELETE FROM events`).WithArgs("ev-2").WillReturnResult(sqlmock.NewResult(0, 0))
	s.ErrorIs(s.repo.DeleteEvent(context.Background(), "ev-2"), ErrEventNotFound)
}

func (s *PostgresRepoSuite) TestCreateEvent_AssignsID() {
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	s.mock.ExpectQuery(`INSERT INTO events`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	e := &model.Event{Name: "Go Meetup", Date: "2026-11-02", Time: "18:30", Venue: "Hall A"}
	s.Require().NoError(s.repo.CreateEvent(context.Background(), e))

	s.NotEmpty(e.ID)
	s.Equal(now, e.CreatedAt)
	s.NotNil(e.Registrations)
}

func (s *PostgresRepoSuite) TestUpdateEvent_NotFound() {
	s.mock.ExpectQuery(`UPDATE events`).WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

	err := s.repo.UpdateEvent(context.Background(), &model.Event{ID: "ev-9"})

	s.ErrorIs(err, ErrEventNotFound)
}

func (s *PostgresRepoSuite) TestMapInsertError() {
	s.ErrorIs(mapInsertError(&pq.Error{Code: pqUniqueViolation, Constraint: constraintToken}), ErrTokenConflict)
	s.ErrorIs(mapInsertError(&pq.Error{Code: pqForeignKeyViolation}), ErrEventNotFound)
	s.Error(mapInsertError(errors.New("boom")))
}

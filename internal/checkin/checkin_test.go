package checkin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eventpass/internal/metrics"
	"eventpass/internal/model"
	"eventpass/internal/repo"
	"eventpass/internal/ticket"
)

type stubIssuer struct {
	err error
}

func (s stubIssuer) Issue() (ticket.Ticket, error) {
	if s.err != nil {
		return ticket.Ticket{}, s.err
	}
	return ticket.Ticket{Token: ticket.NewToken(), CodeImage: "data:image/png;base64,AA=="}, nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) TicketIssued(ctx context.Context, msg TicketIssued) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockNotifier) CheckedIn(ctx context.Context, msg CheckedIn) error {
	return m.Called(ctx, msg).Error(0)
}

func newDesk(t *testing.T, issuer ticket.Issuer, n Notifier) (*Desk, *repo.MemoryRepository, *metrics.Metrics) {
	t.Helper()
	store := repo.NewMemoryRepository()
	m := metrics.New(prometheus.NewRegistry())
	log := zerolog.Nop()
	return NewDesk(store, issuer, n, m, &log), store, m
}

func seedEvent(t *testing.T, store repo.Repository) *model.Event {
	t.Helper()
	e := &model.Event{Name: "Go Meetup", Date: "2026-11-02", Time: "18:30", Venue: "Hall A"}
	require.NoError(t, store.CreateEvent(context.Background(), e))
	return e
}

func adaFor(eventID string) RegisterInput {
	return RegisterInput{EventID: eventID, Name: "Ada", Email: "ada@x.com", Phone: "1234567890"}
}

func TestRegister_IssuesTicket(t *testing.T) {
	desk, store, m := newDesk(t, ticket.NewIssuer(), nil)
	e := seedEvent(t, store)

	reg, err := desk.Register(context.Background(), adaFor(e.ID))
	require.NoError(t, err)

	assert.NotEmpty(t, reg.ID)
	assert.NotEmpty(t, reg.Token)
	assert.False(t, reg.CheckedIn)

	decoded, err := ticket.NewQRDecoder().DecodeDataURL(reg.QRCode)
	require.NoError(t, err)
	assert.Equal(t, reg.Token, decoded)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistrationsCreated))
}

func TestRegister_TokensUniqueAcrossRegistrations(t *testing.T) {
	desk, store, _ := newDesk(t, stubIssuer{}, nil)
	e := seedEvent(t, store)

	const n = 500
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		in := adaFor(e.ID)
		in.Email = fmt.Sprintf("guest%d@x.com", i)
		reg, err := desk.Register(context.Background(), in)
		require.NoError(t, err)
		seen[reg.Token] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	desk, store, _ := newDesk(t, stubIssuer{}, nil)
	e := seedEvent(t, store)

	first, err := desk.Register(context.Background(), adaFor(e.ID))
	require.NoError(t, err)

	again := adaFor(e.ID)
	again.Email = "  ADA@x.com "
	_, err = desk.Register(context.Background(), again)
	assert.ErrorIs(t, err, ErrDuplicateRegistration)

	stored, err := store.GetEventByID(context.Background(), e.ID)
	require.NoError(t, err)
	require.Len(t, stored.Registrations, 1)
	assert.Equal(t, first.Token, stored.Registrations[0].Token)
	assert.Equal(t, "Ada", stored.Registrations[0].Name)
}

func TestRegister_UnknownEvent(t *testing.T) {
	desk, _, _ := newDesk(t, stubIssuer{}, nil)

	_, err := desk.Register(context.Background(), adaFor("missing"))
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestRegister_RenderFailureStoresNothing(t *testing.T) {
	desk, store, _ := newDesk(t, stubIssuer{err: errors.New("encoder exploded")}, nil)
	e := seedEvent(t, store)

	_, err := desk.Register(context.Background(), adaFor(e.ID))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateRegistration)

	stored, err := store.GetEventByID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Registrations)
}

func TestRegister_NotifierFailureDoesNotFail(t *testing.T) {
	n := new(mockNotifier)
	n.On("TicketIssued", mock.Anything, mock.MatchedBy(func(msg TicketIssued) bool {
		return msg.Email == "ada@x.com" && msg.EventDate == "2026-11-02 18:30"
	})).Return(errors.New("broker down")).Once()

	desk, store, _ := newDesk(t, stubIssuer{}, n)
	e := seedEvent(t, store)

	_, err := desk.Register(context.Background(), adaFor(e.ID))
	require.NoError(t, err)
	n.AssertExpectations(t)
}

func TestValidate_OnceThenAlreadyCheckedIn(t *testing.T) {
	n := new(mockNotifier)
	n.On("TicketIssued", mock.Anything, mock.Anything).Return(nil)
	n.On("CheckedIn", mock.Anything, mock.MatchedBy(func(msg CheckedIn) bool {
		return msg.Name == "Ada" && !msg.CheckedInAt.IsZero()
	})).Return(nil).Once()

	desk, store, m := newDesk(t, stubIssuer{}, n)
	e := seedEvent(t, store)
	reg, err := desk.Register(context.Background(), adaFor(e.ID))
	require.NoError(t, err)

	att, err := desk.Validate(context.Background(), reg.Token)
	require.NoError(t, err)
	assert.Equal(t, "Ada", att.Name)
	assert.Equal(t, "ada@x.com", att.Email)
	assert.Equal(t, "1234567890", att.Phone)
	assert.Equal(t, "Go Meetup", att.EventName)
	assert.Equal(t, "Hall A", att.EventVenue)
	assert.Equal(t, "2026-11-02 18:30", att.EventDate)
	assert.True(t, att.CheckedIn)
	require.NotNil(t, att.CheckedInAt)

	att, err = desk.Validate(context.Background(), reg.Token)
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
	assert.Nil(t, att)

	n.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckIns.WithLabelValues(metrics.OutcomeAdmitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckIns.WithLabelValues(metrics.OutcomeAlreadyChecked)))
}

func TestValidate_UnknownToken(t *testing.T) {
	desk, _, _ := newDesk(t, stubIssuer{}, nil)

	_, err := desk.Validate(context.Background(), ticket.NewToken())
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = desk.Validate(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_ConcurrentScansAdmitOnce(t *testing.T) {
	desk, store, _ := newDesk(t, stubIssuer{}, nil)
	e := seedEvent(t, store)
	reg, err := desk.Register(context.Background(), adaFor(e.ID))
	require.NoError(t, err)

	const n = 50
	var ok, already, other atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := desk.Validate(context.Background(), reg.Token)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrAlreadyCheckedIn):
				already.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, n-1, already.Load())
	assert.Zero(t, other.Load())
}

func TestValidate_DeletedEventTokensAreInvalid(t *testing.T) {
	desk, store, _ := newDesk(t, stubIssuer{}, nil)
	e := seedEvent(t, store)
	reg, err := desk.Register(context.Background(), adaFor(e.ID))
	require.NoError(t, err)

	require.NoError(t, store.DeleteEvent(context.Background(), e.ID))

	_, err = desk.Validate(context.Background(), reg.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

type conflictOnceRepo struct {
	*repo.MemoryRepository
	calls int
}

func (r *conflictOnceRepo) AddRegistration(ctx context.Context, eventID string, reg *model.Registration) error {
	r.calls++
	if r.calls == 1 {
		return repo.ErrTokenConflict
	}
	return r.MemoryRepository.AddRegistration(ctx, eventID, reg)
}

func TestRegister_ReissuesOnTokenConflict(t *testing.T) {
	store := &conflictOnceRepo{MemoryRepository: repo.NewMemoryRepository()}
	log := zerolog.Nop()
	desk := NewDesk(store, stubIssuer{}, nil, metrics.New(prometheus.NewRegistry()), &log)
	e := seedEvent(t, store)

	reg, err := desk.Register(context.Background(), adaFor(e.ID))
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, 2, store.calls)
}

package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"eventpass/internal/model"
)

// MemoryRepository keeps everything in process. A single mutex covers events
// and the token index so every operation sees one consistent snapshot.
type MemoryRepository struct {
	mu     sync.RWMutex
	events map[string]*model.Event
	order  []string
	tokens map[string]string
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		events: make(map[string]*model.Event),
		tokens: make(map[string]string),
		now:    time.Now,
	}
}

func (r *MemoryRepository) MigrateUp(string) error   { return nil }
func (r *MemoryRepository) MigrateDown(string) error { return nil }

func (r *MemoryRepository) CreateEvent(_ context.Context, e *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := r.now()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.Registrations == nil {
		e.Registrations = []model.Registration{}
	}
	r.events[e.ID] = cloneEvent(e)
	r.order = append(r.order, e.ID)
	return nil
}

func (r *MemoryRepository) GetEventByID(_ context.Context, id string) (*model.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return cloneEvent(e), nil
}

// GetAllEvents returns events newest first.
func (r *MemoryRepository) GetAllEvents(_ context.Context) ([]model.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Event, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, *cloneEvent(r.events[r.order[i]]))
	}
	return out, nil
}

func (r *MemoryRepository) ListEventSummaries(_ context.Context) ([]model.EventSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.EventSummary, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		e := r.events[r.order[i]]
		out = append(out, model.EventSummary{ID: e.ID, Name: e.Name})
	}
	return out, nil
}

func (r *MemoryRepository) UpdateEvent(_ context.Context, e *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.events[e.ID]
	if !ok {
		return ErrEventNotFound
	}
	cur.Name, cur.Date, cur.Time, cur.Venue, cur.Image = e.Name, e.Date, e.Time, e.Venue, e.Image
	cur.UpdatedAt = r.now()
	e.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r *MemoryRepository) DeleteEvent(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok {
		return ErrEventNotFound
	}
	for _, reg := range e.Registrations {
		delete(r.tokens, reg.Token)
	}
	delete(r.events, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *MemoryRepository) AddRegistration(_ context.Context, eventID string, reg *model.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	for _, existing := range e.Registrations {
		if existing.Email == reg.Email {
			return ErrDuplicateRegistration
		}
	}
	if _, taken := r.tokens[reg.Token]; taken {
		return ErrTokenConflict
	}

	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.RegisteredAt.IsZero() {
		reg.RegisteredAt = r.now()
	}
	reg.CheckedIn = false
	reg.CheckedInAt = nil
	e.Registrations = append(e.Registrations, *reg)
	r.tokens[reg.Token] = eventID
	return nil
}

func (r *MemoryRepository) HasRegistration(_ context.Context, eventID, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.events[eventID]
	if !ok {
		return false, nil
	}
	for _, reg := range e.Registrations {
		if reg.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) FindEventByToken(_ context.Context, token string) (*model.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	eventID, ok := r.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return cloneEvent(r.events[eventID]), nil
}

func (r *MemoryRepository) CheckIn(_ context.Context, token string, at time.Time) (*model.Attendee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	eventID, ok := r.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	e := r.events[eventID]
	reg := e.FindRegistration(token)
	if reg == nil {
		return nil, ErrTokenNotFound
	}
	if reg.CheckedIn {
		return nil, ErrAlreadyCheckedIn
	}
	stamp := at
	reg.CheckedIn = true
	reg.CheckedInAt = &stamp
	return model.NewAttendee(e, reg), nil
}

func cloneEvent(e *model.Event) *model.Event {
	c := *e
	c.Registrations = make([]model.Registration, len(e.Registrations))
	for i, reg := range e.Registrations {
		if reg.CheckedInAt != nil {
			t := *reg.CheckedInAt
			reg.CheckedInAt = &t
		}
		c.Registrations[i] = reg
	}
	return &c
}

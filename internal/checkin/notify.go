package checkin

import (
	"context"
	"time"
)

// TicketIssued is announced after a registration is stored.
type TicketIssued struct {
	RegistrationID string `json:"registration_id"`
	EventID        string `json:"event_id"`
	EventName      string `json:"event_name"`
	EventDate      string `json:"event_date"`
	EventVenue     string `json:"event_venue"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Token          string `json:"token"`
}

// CheckedIn is announced after a successful door validation.
type CheckedIn struct {
	EventID     string    `json:"event_id"`
	EventName   string    `json:"event_name"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

// Notifier delivers desk events somewhere else. Failures never fail the
// request that produced them.
type Notifier interface {
	TicketIssued(ctx context.Context, msg TicketIssued) error
	CheckedIn(ctx context.Context, msg CheckedIn) error
}

type NopNotifier struct{}

func (NopNotifier) TicketIssued(context.Context, TicketIssued) error { return nil }
func (NopNotifier) CheckedIn(context.Context, CheckedIn) error       { return nil }

package model

import "time"

type Event struct {
	ID            string         `db:"id" json:"id" bson:"_id"`
	Name          string         `db:"name" json:"name" bson:"name"`
	Date          string         `db:"date" json:"date" bson:"date"`
	Time          string         `db:"time" json:"time" bson:"time"`
	Venue         string         `db:"venue" json:"venue" bson:"venue"`
	Image         string         `db:"image" json:"image,omitempty" bson:"image,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updatedAt" bson:"updatedAt"`
	Registrations []Registration `db:"-" json:"registrations" bson:"registrations"`
}

// When returns the date and time the way tickets print them.
func (e *Event) When() string {
	if e.Time == "" {
		return e.Date
	}
	return e.Date + " " + e.Time
}

// Registration is embedded in its Event and is only addressable through it
// or through its token.
type Registration struct {
	ID           string     `db:"id" json:"registrationId" bson:"id"`
	Name         string     `db:"name" json:"name" bson:"name"`
	Email        string     `db:"email" json:"email" bson:"email"`
	Phone        string     `db:"phone" json:"phone" bson:"phone"`
	Token        string     `db:"token" json:"token" bson:"token"`
	QRCode       string     `db:"qr_code" json:"qrCode" bson:"qrCode"`
	CheckedIn    bool       `db:"checked_in" json:"checkedIn" bson:"checkedIn"`
	RegisteredAt time.Time  `db:"registered_at" json:"registeredAt" bson:"registeredAt"`
	CheckedInAt  *time.Time `db:"checked_in_at" json:"checkedInAt" bson:"checkedInAt"`
}

// EventSummary is the id/name pair used by event pickers.
type EventSummary struct {
	ID   string `db:"id" json:"id" bson:"_id"`
	Name string `db:"name" json:"name" bson:"name"`
}

// Attendee is the snapshot returned to door staff after a successful check-in.
type Attendee struct {
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	EventID     string     `json:"eventId"`
	EventName   string     `json:"eventName"`
	EventVenue  string     `json:"eventVenue"`
	EventDate   string     `json:"eventDate"`
	CheckedIn   bool       `json:"checkedIn"`
	CheckedInAt *time.Time `json:"checkedInAt,omitempty"`
}

func NewAttendee(e *Event, r *Registration) *Attendee {
	return &Attendee{
		Name:        r.Name,
		Email:       r.Email,
		Phone:       r.Phone,
		EventID:     e.ID,
		EventName:   e.Name,
		EventVenue:  e.Venue,
		EventDate:   e.When(),
		CheckedIn:   r.CheckedIn,
		CheckedInAt: r.CheckedInAt,
	}
}

// FindRegistration returns the registration holding token, or nil.
func (e *Event) FindRegistration(token string) *Registration {
	for i := range e.Registrations {
		if e.Registrations[i].Token == token {
			return &e.Registrations[i]
		}
	}
	return nil
}

package mailer

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLSPolicy is "mandatory", "opportunistic" or "none".
	TLSPolicy string
}

// Ticket is what goes into a ticket e-mail.
type Ticket struct {
	RegistrationID string
	Name           string
	Email          string
	EventName      string
	EventDate      string
	EventVenue     string
	Token          string
}

type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type Mailer struct {
	client sender
	from   string
	log    *zerolog.Logger
}

func ParseTLSPolicy(s string) (mail.TLSPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mandatory":
		return mail.TLSMandatory, nil
	case "opportunistic":
		return mail.TLSOpportunistic, nil
	case "none":
		return mail.NoTLS, nil
	default:
		return mail.TLSMandatory, fmt.Errorf("unknown tls policy %q", s)
	}
}

func New(cfg Config, log *zerolog.Logger) (*Mailer, error) {
	policy, err := ParseTLSPolicy(cfg.TLSPolicy)
	if err != nil {
		return nil, err
	}
	opts := []mail.Option{mail.WithTLSPortPolicy(policy)}
	if cfg.Port != 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	// relays without AUTH (local catchers, internal MTAs) get no credentials
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	c, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not initialize smtp client: %w", err)
	}
	return &Mailer{client: c, from: cfg.From, log: log}, nil
}

// SendTicket mails the attendee their ticket with the QR code attached as PNG.
func (m *Mailer) SendTicket(ctx context.Context, t Ticket, qrPNG []byte) error {
	msg, err := m.ticketMessage(t, qrPNG)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		m.log.Warn().Err(err).Str("registration_id", t.RegistrationID).Msg("failed to send ticket e-mail")
		return fmt.Errorf("send email: %w", err)
	}
	m.log.Info().Str("registration_id", t.RegistrationID).Msg("ticket e-mail sent")
	return nil
}

func (m *Mailer) ticketMessage(t Ticket, qrPNG []byte) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(t.Email); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(fmt.Sprintf("Your ticket for %s", t.EventName))
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Hello %s,\n\nyou are registered for %s.\nWhen: %s\nWhere: %s\n\n"+
			"Show the attached QR code at the entrance.\nTicket ID: %s\n",
		t.Name, t.EventName, t.EventDate, t.EventVenue, t.Token,
	))
	if err := msg.AttachReader("ticket.png", bytes.NewReader(qrPNG)); err != nil {
		return nil, fmt.Errorf("failed to attach ticket: %w", err)
	}
	return msg, nil
}

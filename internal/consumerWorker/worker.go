package consumerWorker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"eventpass/internal/checkin"
	"eventpass/internal/mailer"
	"eventpass/internal/rabbit"
	"eventpass/internal/ticket"
)

type consumer interface {
	Consume(handler rabbit.Handler) error
}

type ticketMailer interface {
	SendTicket(ctx context.Context, t mailer.Ticket, qrPNG []byte) error
}

// Reader drains the notification queue and mails tickets to attendees.
type Reader struct {
	rmq    consumer
	mailer ticketMailer
	log    *zerolog.Logger
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq consumer, m ticketMailer, log *zerolog.Logger) *Reader {
	return &Reader{
		rmq:    rmq,
		mailer: m,
		log:    log,
		done:   make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.log.Info().Msg("notification reader started")

	go func() {
		defer close(r.done)

		if err := r.rmq.Consume(func(key string, body []byte) error {
			return r.handle(cctx, key, body)
		}); err != nil {
			r.log.Error().Err(err).Msg("failed to start consuming")
			return
		}

		<-cctx.Done()
		r.log.Info().Msg("notification reader stopped by context")
	}()
}

func (r *Reader) handle(ctx context.Context, key string, body []byte) error {
	switch key {
	case rabbit.KeyTicketIssued:
		var msg checkin.TicketIssued
		if err := json.Unmarshal(body, &msg); err != nil {
			// A malformed message will never succeed; drop it.
			r.log.Error().Err(err).Msgf("failed to unmarshal message: %s", string(body))
			return nil
		}
		return r.sendTicket(ctx, msg)

	case rabbit.KeyCheckedIn:
		var msg checkin.CheckedIn
		if err := json.Unmarshal(body, &msg); err != nil {
			r.log.Error().Err(err).Msgf("failed to unmarshal message: %s", string(body))
			return nil
		}
		r.log.Info().
			Str("event_id", msg.EventID).
			Str("email", msg.Email).
			Time("checked_in_at", msg.CheckedInAt).
			Msg("attendee admitted")
		return nil

	default:
		r.log.Warn().Str("routing_key", key).Msg("unknown message kind, skipping")
		return nil
	}
}

func (r *Reader) sendTicket(ctx context.Context, msg checkin.TicketIssued) error {
	png, err := ticket.RenderPNG(msg.Token)
	if err != nil {
		r.log.Error().Err(err).Str("registration_id", msg.RegistrationID).Msg("failed to render ticket code")
		return nil
	}

	err = r.mailer.SendTicket(ctx, mailer.Ticket{
		RegistrationID: msg.RegistrationID,
		Name:           msg.Name,
		Email:          msg.Email,
		EventName:      msg.EventName,
		EventDate:      msg.EventDate,
		EventVenue:     msg.EventVenue,
		Token:          msg.Token,
	}, png)
	if err != nil {
		return fmt.Errorf("failed to mail ticket %s: %w", msg.RegistrationID, err)
	}
	return nil
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

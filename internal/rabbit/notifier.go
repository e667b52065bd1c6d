package rabbit

import (
	"context"
	"encoding/json"
	"fmt"

	"eventpass/internal/checkin"
)

type publisher interface {
	Publish(ctx context.Context, routingKey string, message []byte) error
}

// Notifier puts desk notifications on the exchange for the mail worker.
type Notifier struct {
	pub publisher
}

func NewNotifier(pub publisher) *Notifier {
	return &Notifier{pub: pub}
}

func (n *Notifier) TicketIssued(ctx context.Context, msg checkin.TicketIssued) error {
	return n.publish(ctx, KeyTicketIssued, msg)
}

func (n *Notifier) CheckedIn(ctx context.Context, msg checkin.CheckedIn) error {
	return n.publish(ctx, KeyCheckedIn, msg)
}

func (n *Notifier) publish(ctx context.Context, key string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", key, err)
	}
	return n.pub.Publish(ctx, key, payload)
}

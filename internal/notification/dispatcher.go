package notification

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
)

// Dispatcher turns published account events into emails.
type Dispatcher struct {
	messages <-chan *message.Message
	composer *Composer
	sender   Sender
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher reading from messages, usually the
// channel returned by Subscribe.
func NewDispatcher(messages <-chan *message.Message, composer *Composer, sender Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{messages: messages, composer: composer, sender: sender, logger: logger}
}

// Run delivers events until ctx is cancelled. Messages are acked even when
// delivery fails so a broken mail server does not cause redelivery loops.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-d.messages:
			if !ok {
				return nil
			}
			d.handle(ctx, msg)
			msg.Ack()
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg *message.Message) {
	var event domain.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		d.logger.ErrorContext(ctx, "dropping malformed event", "message_id", msg.UUID, "error", err)
		return
	}

	email, err := d.composer.Compose(event)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to compose email", "event", event.Kind, "error", err)
		return
	}
	if err := d.sender.Send(ctx, email); err != nil {
		d.logger.ErrorContext(ctx, "failed to send email", "event", event.Kind, "to", event.Email, "error", err)
		return
	}
	d.logger.InfoContext(ctx, "email sent", "event", event.Kind, "to", event.Email)
}

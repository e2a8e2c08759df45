package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
)

// Topic carries account events from the services to the dispatcher.
const Topic = "account.events"

// NewChannel creates the in-process pub/sub used between Publisher and
// Dispatcher. Messages are not retained: only subscriptions that exist at
// publish time receive them.
func NewChannel() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
}

// Subscribe opens the subscription the Dispatcher reads from. Call it before
// anything is published; it stays open until sub is closed.
func Subscribe(sub message.Subscriber) (<-chan *message.Message, error) {
	messages, err := sub.Subscribe(context.Background(), Topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", Topic, err)
	}
	return messages, nil
}

// Publisher hands account events to a watermill publisher.
type Publisher struct {
	pub   message.Publisher
	topic string
}

// NewPublisher creates a publisher writing to Topic.
func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub, topic: Topic}
}

// Notify publishes event as JSON.
func (p *Publisher) Notify(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := p.pub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Kind, err)
	}
	return nil
}

package notification

import (
	"context"
	"fmt"

	"github.com/careslot/booking-api/pkg/messaging"
)

// EventNotifier publishes notifications onto the message broker, where a
// downstream delivery worker (SMS gateway, app push) picks them up.
type EventNotifier struct {
	broker  messaging.Broker
	channel string
}

type Event struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

func NewEventNotifier(broker messaging.Broker, channel string) *EventNotifier {
	if channel == "" {
		channel = "notifications"
	}
	return &EventNotifier{broker: broker, channel: channel}
}

func (n *EventNotifier) Notify(ctx context.Context, recipient, message string) error {
	err := n.broker.Publish(ctx, n.channel, messaging.Message{
		Type: "notification",
		Payload: Event{
			Recipient: recipient,
			Message:   message,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

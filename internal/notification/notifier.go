// Package notification delivers best-effort outbound messages. Delivery is
// fire-and-forget from the core's point of view: failures are reported to
// the caller, who logs and moves on.
package notification

import (
	"context"

	"github.com/careslot/booking-api/pkg/logger"
)

// Notifier is the narrow interface the core depends on.
type Notifier interface {
	Notify(ctx context.Context, recipient, message string) error
}

// LogNotifier writes notifications to the log. Default when no outbound
// channel is configured, and handy in tests.
type LogNotifier struct {
	logger *logger.Logger
}

func NewLogNotifier(logger *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, recipient, message string) error {
	n.logger.ZL.Info().Str("recipient", recipient).Str("message", message).Msg("notification")
	return nil
}

// MultiNotifier fans a notification out to several channels. The first
// error is returned after every channel has been tried.
type MultiNotifier struct {
	notifiers []Notifier
}

func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

func (n *MultiNotifier) Notify(ctx context.Context, recipient, message string) error {
	var firstErr error
	for _, notifier := range n.notifiers {
		if err := notifier.Notify(ctx, recipient, message); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

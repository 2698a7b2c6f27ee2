// Package notify delivers booking events to users. Delivery is best effort
// and the booking service never blocks on it beyond a short timeout.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/SevaSetuLabs/booking/pkg/booking"
)

// LogNotifier writes events to the process log instead of a realtime
// channel. Used when no realtime credentials are configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier wires a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the event at info level.
func (notifier *LogNotifier) Notify(_ context.Context, userID string, event booking.Event) error {
	notifier.logger.Info("booking event",
		zap.String("user_id", userID),
		zap.String("event_type", event.Type),
		zap.String("booking_id", event.BookingID),
		zap.String("status", event.Status.String()),
		zap.String("message", event.Message),
		zap.Int64("at_unix_utc", event.AtUnixUTC),
	)
	return nil
}

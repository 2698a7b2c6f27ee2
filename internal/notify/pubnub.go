package notify

import (
	"context"

	pubnub "github.com/pubnub/go/v7"
	"go.uber.org/zap"

	"github.com/SevaSetuLabs/booking/pkg/booking"
)

const userChannelPrefix = "user-"

// PubNubNotifier publishes booking events to per-user PubNub channels.
type PubNubNotifier struct {
	client *pubnub.PubNub
	logger *zap.Logger
}

// NewPubNubNotifier wires a PubNubNotifier.
func NewPubNubNotifier(client *pubnub.PubNub, logger *zap.Logger) *PubNubNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubNubNotifier{client: client, logger: logger}
}

// Notify publishes the event to the user's channel. The SDK manages its own
// request deadlines, so the caller's context is not threaded through.
func (notifier *PubNubNotifier) Notify(_ context.Context, userID string, event booking.Event) error {
	channel := userChannelPrefix + userID
	_, _, err := notifier.client.Publish().
		Channel(channel).
		Message(map[string]any{
			"type":        event.Type,
			"booking_id":  event.BookingID,
			"status":      event.Status.String(),
			"message":     event.Message,
			"at_unix_utc": event.AtUnixUTC,
		}).
		Execute()
	if err != nil {
		notifier.logger.Warn("pubnub publish failed",
			zap.String("channel", channel),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		return err
	}
	return nil
}

package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openagora/tunnel/internal/envelope"
	"github.com/openagora/tunnel/internal/tunnel"
)

// EventNotificationNew is the event name on notification channels.
const EventNotificationNew = "notification:new"

// Notification is the domain shape for one user notification.
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notifier publishes and consumes notifications over the tunnel.
type Notifier struct {
	bus Bus
}

// NewNotifier creates a notification adapter.
func NewNotifier(bus Bus) *Notifier {
	return &Notifier{bus: bus}
}

// Push publishes a notification on the user's notification channel.
func (n *Notifier) Push(ctx context.Context, userID string, notif Notification) error {
	if userID == "" {
		return fmt.Errorf("notification missing user id")
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return n.bus.Publish(ctx, NotificationChannel(userID), EventNotificationNew, payload)
}

// OnNotification subscribes to a user's notifications.
func (n *Notifier) OnNotification(userID string, fn func(Notification)) tunnel.Unsubscribe {
	return n.bus.Subscribe(NotificationChannel(userID), func(env envelope.Envelope) {
		if env.Event != EventNotificationNew {
			return
		}
		var notif Notification
		if err := json.Unmarshal(env.Payload, &notif); err != nil {
			return
		}
		fn(notif)
	})
}

// Package adapters maps generic tunnel envelopes into domain shapes: chat
// messages, typing indicators and notifications. Adapters are thin
// collaborators over the tunnel; they own their payload schemas, the tunnel
// stays payload-agnostic.
//
// Channel names follow the <domain>:<scopeId> convention, e.g.
// conversation:42 or notifications:user-7.
package adapters

import (
	"context"

	"github.com/openagora/tunnel/internal/envelope"
	"github.com/openagora/tunnel/internal/registry"
	"github.com/openagora/tunnel/internal/tunnel"
)

// Bus is the slice of the tunnel the adapters need.
type Bus interface {
	Publish(ctx context.Context, channel, event string, payload envelope.Payload) error
	Subscribe(channel string, callback registry.Callback) tunnel.Unsubscribe
}

// ConversationChannel returns the channel name for a conversation scope.
func ConversationChannel(conversationID string) string {
	return "conversation:" + conversationID
}

// NotificationChannel returns the channel name for a user's notifications.
func NotificationChannel(userID string) string {
	return "notifications:" + userID
}

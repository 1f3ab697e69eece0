package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openagora/tunnel/internal/envelope"
	"github.com/openagora/tunnel/internal/tunnel"
)

// Chat event names on conversation channels.
const (
	EventMessageNew = "message:new"
	EventTyping     = "typing"
)

// ChatMessage is the domain shape for one chat message.
type ChatMessage struct {
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Text           string    `json:"text"`
	SentAt         time.Time `json:"sentAt"`
}

// TypingIndicator signals that a user started or stopped typing.
type TypingIndicator struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// Chat publishes and consumes chat traffic over the tunnel.
type Chat struct {
	bus Bus
}

// NewChat creates a chat adapter.
func NewChat(bus Bus) *Chat {
	return &Chat{bus: bus}
}

// Send publishes a chat message on its conversation channel. Delivery is
// best-effort: callers observing a not-connected error retry after the
// tunnel reports connected again, or treat the message as lost.
func (c *Chat) Send(ctx context.Context, msg ChatMessage) error {
	if msg.ConversationID == "" {
		return fmt.Errorf("chat message missing conversation id")
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}
	return c.bus.Publish(ctx, ConversationChannel(msg.ConversationID), EventMessageNew, payload)
}

// SetTyping publishes a typing indicator on the conversation channel.
func (c *Chat) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	payload, err := json.Marshal(TypingIndicator{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	})
	if err != nil {
		return fmt.Errorf("encode typing indicator: %w", err)
	}
	return c.bus.Publish(ctx, ConversationChannel(conversationID), EventTyping, payload)
}

// OnMessage subscribes to new messages in a conversation. Malformed or
// foreign events on the channel are skipped.
func (c *Chat) OnMessage(conversationID string, fn func(ChatMessage)) tunnel.Unsubscribe {
	return c.bus.Subscribe(ConversationChannel(conversationID), func(env envelope.Envelope) {
		if env.Event != EventMessageNew {
			return
		}
		var msg ChatMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return
		}
		fn(msg)
	})
}

// OnTyping subscribes to typing indicators in a conversation.
func (c *Chat) OnTyping(conversationID string, fn func(TypingIndicator)) tunnel.Unsubscribe {
	return c.bus.Subscribe(ConversationChannel(conversationID), func(env envelope.Envelope) {
		if env.Event != EventTyping {
			return
		}
		var ind TypingIndicator
		if err := json.Unmarshal(env.Payload, &ind); err != nil {
			return
		}
		fn(ind)
	})
}

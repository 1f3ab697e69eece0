package adapters

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openagora/tunnel/internal/envelope"
	"github.com/openagora/tunnel/internal/provider"
	"github.com/openagora/tunnel/internal/registry"
	"github.com/openagora/tunnel/internal/tunnel"
)

type published struct {
	channel string
	event   string
	payload []byte
}

// fakeBus records publishes and delivers injected envelopes to channel
// subscribers synchronously.
type fakeBus struct {
	published  []published
	subs       map[string][]registry.Callback
	publishErr error
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[string][]registry.Callback)}
}

func (b *fakeBus) Publish(_ context.Context, channel, event string, payload envelope.Payload) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, published{channel: channel, event: event, payload: payload})
	return nil
}

func (b *fakeBus) Subscribe(channel string, callback registry.Callback) tunnel.Unsubscribe {
	b.subs[channel] = append(b.subs[channel], callback)
	return func() {}
}

func (b *fakeBus) inject(channel, event string, payload []byte) {
	env := envelope.New(channel, event, payload, "")
	for _, cb := range b.subs[channel] {
		cb(env)
	}
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "conversation:42", ConversationChannel("42"))
	assert.Equal(t, "notifications:user-7", NotificationChannel("user-7"))
}

func TestChat_Send(t *testing.T) {
	bus := newFakeBus()
	chat := NewChat(bus)

	err := chat.Send(context.Background(), ChatMessage{
		ConversationID: "42",
		SenderID:       "u1",
		Text:           "hello",
	})
	require.NoError(t, err)

	require.Len(t, bus.published, 1)
	pub := bus.published[0]
	assert.Equal(t, "conversation:42", pub.channel)
	assert.Equal(t, EventMessageNew, pub.event)

	var msg ChatMessage
	require.NoError(t, json.Unmarshal(pub.payload, &msg))
	assert.Equal(t, "u1", msg.SenderID)
	assert.Equal(t, "hello", msg.Text)
	assert.False(t, msg.SentAt.IsZero(), "send stamps a missing timestamp")
}

func TestChat_Send_MissingConversation(t *testing.T) {
	bus := newFakeBus()
	chat := NewChat(bus)

	err := chat.Send(context.Background(), ChatMessage{Text: "hello"})
	require.Error(t, err)
	assert.Empty(t, bus.published)
}

func TestChat_Send_PublishFailurePropagates(t *testing.T) {
	bus := newFakeBus()
	bus.publishErr = provider.ErrNotConnected
	chat := NewChat(bus)

	err := chat.Send(context.Background(), ChatMessage{ConversationID: "42", Text: "x"})
	assert.ErrorIs(t, err, provider.ErrNotConnected)
}

func TestChat_OnMessage(t *testing.T) {
	bus := newFakeBus()
	chat := NewChat(bus)

	var got []ChatMessage
	chat.OnMessage("42", func(msg ChatMessage) { got = append(got, msg) })

	payload, _ := json.Marshal(ChatMessage{ConversationID: "42", SenderID: "u2", Text: "hi"})
	bus.inject("conversation:42", EventMessageNew, payload)

	// Foreign events and malformed payloads on the channel are skipped.
	bus.inject("conversation:42", EventTyping, []byte(`{"isTyping":true}`))
	bus.inject("conversation:42", EventMessageNew, []byte(`not json`))

	require.Len(t, got, 1)
	assert.Equal(t, "u2", got[0].SenderID)
	assert.Equal(t, "hi", got[0].Text)
}

func TestChat_Typing(t *testing.T) {
	bus := newFakeBus()
	chat := NewChat(bus)

	var got []TypingIndicator
	chat.OnTyping("42", func(ind TypingIndicator) { got = append(got, ind) })

	require.NoError(t, chat.SetTyping(context.Background(), "42", "u1", true))

	require.Len(t, bus.published, 1)
	pub := bus.published[0]
	assert.Equal(t, "conversation:42", pub.channel)
	assert.Equal(t, EventTyping, pub.event)

	bus.inject(pub.channel, pub.event, pub.payload)
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].UserID)
	assert.True(t, got[0].IsTyping)
}

func TestNotifier_Push(t *testing.T) {
	bus := newFakeBus()
	notifier := NewNotifier(bus)

	err := notifier.Push(context.Background(), "user-7", Notification{
		ID:    "n1",
		Kind:  "mention",
		Title: "You were mentioned",
	})
	require.NoError(t, err)

	require.Len(t, bus.published, 1)
	pub := bus.published[0]
	assert.Equal(t, "notifications:user-7", pub.channel)
	assert.Equal(t, EventNotificationNew, pub.event)

	var notif Notification
	require.NoError(t, json.Unmarshal(pub.payload, &notif))
	assert.Equal(t, "n1", notif.ID)
	assert.False(t, notif.CreatedAt.IsZero())
}

func TestNotifier_Push_MissingUser(t *testing.T) {
	bus := newFakeBus()
	notifier := NewNotifier(bus)

	require.Error(t, notifier.Push(context.Background(), "", Notification{ID: "n1"}))
	assert.Empty(t, bus.published)
}

func TestNotifier_OnNotification(t *testing.T) {
	bus := newFakeBus()
	notifier := NewNotifier(bus)

	var got []Notification
	notifier.OnNotification("user-7", func(n Notification) { got = append(got, n) })

	payload, _ := json.Marshal(Notification{ID: "n2", Kind: "invite", CreatedAt: time.Now().UTC()})
	bus.inject("notifications:user-7", EventNotificationNew, payload)
	bus.inject("notifications:user-7", "other:event", payload)

	require.Len(t, got, 1)
	assert.Equal(t, "n2", got[0].ID)
}

package presence

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openagora/tunnel/internal/config"
	"github.com/openagora/tunnel/internal/envelope"
	"github.com/openagora/tunnel/internal/log"
	"github.com/openagora/tunnel/internal/registry"
	"github.com/openagora/tunnel/internal/tunnel"
)

type published struct {
	channel string
	event   string
	payload []byte
}

// fakeBus records publishes and fans injections out to subscribers
// synchronously.
type fakeBus struct {
	mu         sync.Mutex
	published  []published
	subs       map[string][]registry.Callback
	publishErr error
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[string][]registry.Callback)}
}

func (b *fakeBus) Publish(_ context.Context, channel, event string, payload envelope.Payload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, published{channel: channel, event: event, payload: payload})
	return nil
}

func (b *fakeBus) Subscribe(channel string, callback registry.Callback) tunnel.Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[channel] = append(b.subs[channel], callback)
	return func() {}
}

func (b *fakeBus) Inject(env envelope.Envelope) {
	b.mu.Lock()
	callbacks := append([]registry.Callback(nil), b.subs[env.Channel]...)
	b.mu.Unlock()
	for _, cb := range callbacks {
		cb(env)
	}
}

func (b *fakeBus) publishedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

func (b *fakeBus) lastPublished() published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published[len(b.published)-1]
}

func testPresenceConfig() *config.PresenceConfig {
	return &config.PresenceConfig{
		HeartbeatInterval: 15 * time.Second,
		AwayAfter:         time.Minute,
		StaleAfter:        3 * time.Minute,
		SweepInterval:     5 * time.Second,
	}
}

// newTestTracker returns a tracker with a controllable clock.
func newTestTracker(t *testing.T, bus *fakeBus) (*Tracker, *time.Time) {
	t.Helper()
	tracker := NewTracker(testPresenceConfig(), bus, log.New())
	t.Cleanup(tracker.Close)

	now := time.Now()
	tracker.clock = func() time.Time { return now }
	return tracker, &now
}

func TestHeartbeat_PublishesAndMarksOnline(t *testing.T) {
	bus := newFakeBus()
	tracker, _ := newTestTracker(t, bus)

	require.NoError(t, tracker.Heartbeat(context.Background(), "u1"))

	assert.True(t, tracker.IsOnline("u1"))
	assert.Equal(t, StatusOnline, tracker.StatusOf("u1"))

	require.Equal(t, 1, bus.publishedCount())
	pub := bus.lastPublished()
	assert.Equal(t, Channel, pub.channel)
	assert.Equal(t, EventHeartbeat, pub.event)

	var body statusPayload
	require.NoError(t, json.Unmarshal(pub.payload, &body))
	assert.Equal(t, "u1", body.Identity)
}

func TestIsOnline_UnknownIdentity(t *testing.T) {
	bus := newFakeBus()
	tracker, _ := newTestTracker(t, bus)

	assert.False(t, tracker.IsOnline("nobody"))
	assert.Equal(t, StatusOffline, tracker.StatusOf("nobody"))
}

func TestStaleness_DerivedOnRead(t *testing.T) {
	bus := newFakeBus()
	tracker, now := newTestTracker(t, bus)

	require.NoError(t, tracker.Heartbeat(context.Background(), "u1"))
	assert.True(t, tracker.IsOnline("u1"))

	// Past the away threshold the identity is no longer online, without any
	// explicit offline event.
	*now = now.Add(90 * time.Second)
	assert.False(t, tracker.IsOnline("u1"))
	assert.Equal(t, StatusAway, tracker.StatusOf("u1"))

	// Past the stale threshold it is offline.
	*now = now.Add(3 * time.Minute)
	assert.Equal(t, StatusOffline, tracker.StatusOf("u1"))
}

func TestInboundHeartbeat_UpdatesRecord(t *testing.T) {
	bus := newFakeBus()
	tracker, _ := newTestTracker(t, bus)

	payload, _ := json.Marshal(statusPayload{Identity: "u2", Status: string(StatusOnline)})
	bus.Inject(envelope.New(Channel, EventHeartbeat, payload, "u2"))

	assert.True(t, tracker.IsOnline("u2"))

	seen, ok := tracker.LastSeen("u2")
	require.True(t, ok)
	assert.False(t, seen.IsZero())
}

func TestInboundHeartbeat_TwoSubscribersFireOnce(t *testing.T) {
	bus := newFakeBus()
	_, _ = newTestTracker(t, bus)

	var first, second []string
	bus.Subscribe(Channel, func(env envelope.Envelope) {
		var body statusPayload
		if json.Unmarshal(env.Payload, &body) == nil {
			first = append(first, body.Identity)
		}
	})
	bus.Subscribe(Channel, func(env envelope.Envelope) {
		var body statusPayload
		if json.Unmarshal(env.Payload, &body) == nil {
			second = append(second, body.Identity)
		}
	})

	payload, _ := json.Marshal(statusPayload{Identity: "u1", Status: string(StatusOnline)})
	bus.Inject(envelope.New(Channel, EventHeartbeat, payload, "u1"))

	assert.Equal(t, []string{"u1"}, first)
	assert.Equal(t, []string{"u1"}, second)
}

func TestSweep_AnnouncesTransitions(t *testing.T) {
	bus := newFakeBus()
	tracker, now := newTestTracker(t, bus)

	var transitions []string
	bus.Subscribe(Channel, func(env envelope.Envelope) {
		if env.Event != EventStatus {
			return
		}
		var body statusPayload
		if json.Unmarshal(env.Payload, &body) == nil {
			transitions = append(transitions, body.Identity+"="+body.Status)
		}
	})

	require.NoError(t, tracker.Heartbeat(context.Background(), "u1"))
	// Heartbeat for a new identity announces the online transition.
	assert.Equal(t, []string{"u1=online"}, transitions)

	*now = now.Add(90 * time.Second)
	tracker.sweep()
	assert.Equal(t, []string{"u1=online", "u1=away"}, transitions)

	*now = now.Add(3 * time.Minute)
	tracker.sweep()
	assert.Equal(t, []string{"u1=online", "u1=away", "u1=offline"}, transitions)

	// No change, no announcement.
	tracker.sweep()
	assert.Len(t, transitions, 3)
}

func TestMalformedHeartbeat_Dropped(t *testing.T) {
	bus := newFakeBus()
	tracker, _ := newTestTracker(t, bus)

	bus.Inject(envelope.New(Channel, EventHeartbeat, []byte(`not json`), ""))
	bus.Inject(envelope.New(Channel, EventHeartbeat, []byte(`{}`), ""))

	assert.False(t, tracker.IsOnline(""))
}

func TestHeartbeat_PublishFailurePropagates(t *testing.T) {
	bus := newFakeBus()
	tracker, _ := newTestTracker(t, bus)
	bus.publishErr = context.DeadlineExceeded

	err := tracker.Heartbeat(context.Background(), "u1")
	require.Error(t, err)

	// The local record still refreshed: the local view never depends on the
	// publish round trip.
	assert.True(t, tracker.IsOnline("u1"))
}

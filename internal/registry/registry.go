// Package registry maintains the channel → subscriber mapping and makes
// inbound delivery idempotent through a bounded recent-id window.
package registry

import (
	"sync"

	"github.com/openagora/tunnel/internal/envelope"
	"github.com/openagora/tunnel/internal/log"
)

// Callback receives one envelope per dispatch on a subscribed channel.
type Callback func(envelope.Envelope)

// SubscriberID identifies one subscription for later removal.
type SubscriberID uint64

type subscription struct {
	id       SubscriberID
	callback Callback
}

// Registry is concurrency-safe. Delivery order across subscribers on the
// same channel is insertion order. Callbacks are never invoked while the
// internal lock is held, so a callback may subscribe or unsubscribe freely.
type Registry struct {
	mu       sync.Mutex
	channels map[string][]subscription
	byID     map[SubscriberID]string
	nextID   SubscriberID
	dedup    *dedupWindow
	log      *log.Logger
}

// New creates a registry whose dedup window remembers the last windowSize
// envelope ids. windowSize <= 0 falls back to 1000.
func New(windowSize int, logger *log.Logger) *Registry {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &Registry{
		channels: make(map[string][]subscription),
		byID:     make(map[SubscriberID]string),
		dedup:    newDedupWindow(windowSize),
		log:      logger,
	}
}

// Subscribe registers a callback on a channel and returns its id.
func (r *Registry) Subscribe(channel string, callback Callback) SubscriberID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.channels[channel] = append(r.channels[channel], subscription{id: id, callback: callback})
	r.byID[id] = channel
	return id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (r *Registry) Unsubscribe(id SubscriberID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	channel, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)

	subs := r.channels[channel]
	for i := range subs {
		if subs[i].id == id {
			r.channels[channel] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(r.channels[channel]) == 0 {
		delete(r.channels, channel)
	}
}

// SubscriberCount returns the number of active subscriptions on a channel.
func (r *Registry) SubscriberCount(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels[channel])
}

// Dispatch delivers an envelope to every subscriber of its channel in
// registration order. Redelivery of an already-seen envelope id is a no-op.
// A panicking callback is isolated and logged; delivery continues with the
// remaining subscribers.
func (r *Registry) Dispatch(env envelope.Envelope) {
	r.mu.Lock()
	if !r.dedup.mark(env.ID) {
		r.mu.Unlock()
		r.log.Trace("Dropping duplicate envelope %s on channel %s", env.ID, env.Channel)
		return
	}
	subs := r.channels[env.Channel]
	// Snapshot so callbacks run outside the lock.
	snapshot := make([]subscription, len(subs))
	copy(snapshot, subs)
	r.mu.Unlock()

	for _, sub := range snapshot {
		r.invoke(sub, env)
	}
}

func (r *Registry) invoke(sub subscription, env envelope.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Subscriber %d panicked on channel %s: %v", sub.id, env.Channel, rec)
		}
	}()
	sub.callback(env)
}

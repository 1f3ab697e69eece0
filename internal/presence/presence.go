// Package presence derives online/away/offline status per identity from
// heartbeat recency on the reserved presence channel. Transitions are
// push-derived locally, so queries never make a server round trip.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/openagora/tunnel/internal/config"
	"github.com/openagora/tunnel/internal/envelope"
	"github.com/openagora/tunnel/internal/log"
	"github.com/openagora/tunnel/internal/registry"
	"github.com/openagora/tunnel/internal/tunnel"
)

// Channel is the reserved channel presence traffic travels on.
const Channel = "presence"

// Event names on the presence channel.
const (
	EventHeartbeat = "presence:heartbeat"
	EventStatus    = "presence:status"
)

// Status is the derived availability of an identity.
type Status string

// Status values, ordered by heartbeat recency.
const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

// Record is the stored presence state for one identity. Status holds the
// value of the last notified transition; the effective status is recomputed
// from LastSeen on every read.
type Record struct {
	Identity string
	Status   Status
	LastSeen time.Time
}

// statusPayload is the JSON body of heartbeat and status envelopes.
type statusPayload struct {
	Identity string `json:"identity"`
	Status   string `json:"status"`
}

// Bus is the slice of the tunnel the tracker needs. Inject delivers an
// envelope to local subscribers only, used for locally derived transitions.
type Bus interface {
	Publish(ctx context.Context, channel, event string, payload envelope.Payload) error
	Subscribe(channel string, callback registry.Callback) tunnel.Unsubscribe
	Inject(env envelope.Envelope)
}

// Tracker maintains presence records from heartbeats. Safe for concurrent
// use.
type Tracker struct {
	cfg *config.PresenceConfig
	bus Bus
	log *log.Logger

	mu      sync.Mutex
	records map[string]*Record
	unsub   tunnel.Unsubscribe
	clock   func() time.Time
}

// NewTracker creates a tracker and subscribes it to the presence channel.
func NewTracker(cfg *config.PresenceConfig, bus Bus, logger *log.Logger) *Tracker {
	t := &Tracker{
		cfg:     cfg,
		bus:     bus,
		log:     logger,
		records: make(map[string]*Record),
		clock:   time.Now,
	}
	t.unsub = bus.Subscribe(Channel, t.handleEnvelope)
	return t
}

// Run sweeps for stale records until the context is cancelled. The sweep
// demotes silent identities and notifies local subscribers of each
// transition.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.sweep()
		}
	}
}

// Close removes the tracker's subscription.
func (t *Tracker) Close() {
	if t.unsub != nil {
		t.unsub()
	}
}

// Heartbeat publishes a presence heartbeat for identity and refreshes the
// local record immediately, so the local view does not depend on the
// provider echoing the envelope back.
func (t *Tracker) Heartbeat(ctx context.Context, identity string) error {
	payload, err := json.Marshal(statusPayload{Identity: identity, Status: string(StatusOnline)})
	if err != nil {
		return fmt.Errorf("encode heartbeat: %w", err)
	}

	t.touch(identity)

	if err := t.bus.Publish(ctx, Channel, EventHeartbeat, payload); err != nil {
		return fmt.Errorf("heartbeat for %s: %w", identity, err)
	}
	return nil
}

// IsOnline reports whether identity has a fresh heartbeat. A record older
// than the away threshold is not online even without an explicit offline
// event.
func (t *Tracker) IsOnline(identity string) bool {
	return t.StatusOf(identity) == StatusOnline
}

// StatusOf returns the effective status of identity, recomputed from
// heartbeat recency at call time.
func (t *Tracker) StatusOf(identity string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[identity]
	if !ok {
		return StatusOffline
	}
	return t.derivedLocked(rec)
}

// LastSeen returns the last heartbeat instant for identity, if any.
func (t *Tracker) LastSeen(identity string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[identity]
	if !ok {
		return time.Time{}, false
	}
	return rec.LastSeen, true
}

// derivedLocked computes the effective status from heartbeat age. Caller
// holds t.mu.
func (t *Tracker) derivedLocked(rec *Record) Status {
	age := t.clock().Sub(rec.LastSeen)
	switch {
	case age < t.cfg.AwayAfter:
		return StatusOnline
	case age < t.cfg.StaleAfter:
		return StatusAway
	default:
		return StatusOffline
	}
}

// handleEnvelope updates records from inbound presence traffic. Status
// envelopes are ignored here: they originate from local sweeps and carry no
// new heartbeat information.
func (t *Tracker) handleEnvelope(env envelope.Envelope) {
	if env.Event != EventHeartbeat {
		return
	}

	var body statusPayload
	if err := json.Unmarshal(env.Payload, &body); err != nil || body.Identity == "" {
		t.log.Warn("Dropping malformed presence heartbeat %s", env.ID)
		return
	}
	t.touch(body.Identity)
}

// touch records a heartbeat for identity and announces the transition when
// the identity was not previously online.
func (t *Tracker) touch(identity string) {
	t.mu.Lock()
	rec, ok := t.records[identity]
	if !ok {
		rec = &Record{Identity: identity}
		t.records[identity] = rec
	}
	previous := rec.Status
	rec.LastSeen = t.clock()
	rec.Status = StatusOnline
	t.mu.Unlock()

	if previous != StatusOnline {
		t.announce(identity, StatusOnline)
	}
}

// sweep demotes silent records and notifies local subscribers of each
// transition.
func (t *Tracker) sweep() {
	type change struct {
		identity string
		status   Status
	}
	var changes []change

	t.mu.Lock()
	for _, rec := range t.records {
		derived := t.derivedLocked(rec)
		if derived != rec.Status {
			rec.Status = derived
			changes = append(changes, change{identity: rec.Identity, status: derived})
		}
	}
	t.mu.Unlock()

	for _, c := range changes {
		t.log.Debug("Presence: %s -> %s", c.identity, c.status)
		t.announce(c.identity, c.status)
	}
}

// announce injects a locally derived status transition on the presence
// channel.
func (t *Tracker) announce(identity string, status Status) {
	payload, err := json.Marshal(statusPayload{Identity: identity, Status: string(status)})
	if err != nil {
		return
	}
	t.bus.Inject(envelope.New(Channel, EventStatus, payload, ""))
}

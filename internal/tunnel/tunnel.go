// Package tunnel implements the connection orchestrator: it owns the single
// active transport provider, drives the connection state machine, negotiates
// provider order, performs health-based failover and exposes the public
// publish/subscribe API.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openagora/tunnel/internal/backoff"
	"github.com/openagora/tunnel/internal/config"
	"github.com/openagora/tunnel/internal/envelope"
	"github.com/openagora/tunnel/internal/log"
	"github.com/openagora/tunnel/internal/provider"
	"github.com/openagora/tunnel/internal/registry"
)

// Orchestrator-level errors. Provider-level sentinels (ErrNotConnected and
// friends) pass through wrapped and remain matchable with errors.Is.
var (
	// ErrNoCandidate means every usable candidate failed probe or connect.
	ErrNoCandidate = errors.New("no transport candidate available")

	// ErrUnknownProvider is returned by SwitchProvider for a name that is not
	// in the candidate list.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Unsubscribe removes the subscription it was returned for. Safe to call
// multiple times.
type Unsubscribe func()

// inboundBuffer bounds the queue between provider receive goroutines and the
// dispatch loop. Overflow drops frames: the tunnel is best-effort, not a
// durable queue.
const inboundBuffer = 256

// Tunnel is the connection orchestrator. All state transitions are
// serialized through one mutex, so the state machine never observes two
// concurrent transitions regardless of which timer or caller originates
// them. Construct explicitly with New and share by reference; there is no
// process-wide instance.
type Tunnel struct {
	cfg      *config.TunnelConfig
	log      *log.Logger
	registry *registry.Registry
	policy   *backoff.Policy

	mu             sync.Mutex
	state          State
	candidates     []*provider.Descriptor // descending priority
	active         *provider.Descriptor
	epoch          uint64 // bumped on Disconnect and negotiation takeover; fences stale completions
	attempt        int    // reconnection attempt counter
	retryTimer     *time.Timer
	unhealthyTicks int
	inbound        chan envelope.Envelope
	loopCancel     context.CancelFunc
}

// New creates an orchestrator over the given candidates. Candidate order is
// made descending by priority; the slice is not retained.
func New(cfg *config.TunnelConfig, candidates []*provider.Descriptor, logger *log.Logger) *Tunnel {
	sorted := make([]*provider.Descriptor, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	t := &Tunnel{
		cfg:        cfg,
		log:        logger,
		registry:   registry.New(cfg.DedupWindow, logger),
		policy:     backoff.NewPolicy(cfg.ReconnectBase, cfg.ReconnectMax, cfg.MaxReconnectAttempts),
		state:      StateDisconnected,
		candidates: sorted,
	}

	// The inbound handler is registered once per provider for the tunnel's
	// lifetime; connect/disconnect cycles never double-register it.
	for _, desc := range sorted {
		desc.Provider.OnMessage(t.enqueue)
	}
	return t
}

// State returns the current connection state.
func (t *Tunnel) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ActiveProvider returns the name of the active provider, or "" when none.
func (t *Tunnel) ActiveProvider() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return ""
	}
	return t.active.Provider.Name()
}

// Health returns the active provider's best-known health snapshot. The zero
// snapshot is returned while no provider is active.
func (t *Tunnel) Health() provider.HealthSnapshot {
	t.mu.Lock()
	active := t.active
	t.mu.Unlock()
	if active == nil {
		return provider.HealthSnapshot{}
	}
	return active.Provider.Health()
}

// Connect starts candidate negotiation from the highest priority. Calling it
// while connecting or connected is a no-op. On failure the reconnection
// policy schedules retries; the returned error reports only the first round.
func (t *Tunnel) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.state == StateConnected || t.state == StateConnecting {
		t.mu.Unlock()
		return nil
	}
	t.takeOverNegotiationLocked()
	t.startLoopsLocked()
	t.attempt = 0
	t.setStateLocked(StateConnecting)
	epoch := t.epoch
	t.mu.Unlock()

	return t.negotiate(ctx, epoch, 0)
}

// takeOverNegotiationLocked cancels any pending or in-flight reconnection so
// the caller becomes the only negotiation session: the retry timer is
// disarmed and the epoch bump fences a retry that already fired. Without
// this, an explicit Connect racing a scheduled retry could connect two
// providers and leak the untracked one. Caller holds t.mu.
func (t *Tunnel) takeOverNegotiationLocked() {
	t.epoch++
	if t.retryTimer != nil {
		t.retryTimer.Stop()
		t.retryTimer = nil
	}
}

// negotiate walks the candidate ring starting at startIdx, probing and
// connecting until one succeeds. On exhaustion it transitions to Error and
// schedules a retry from the highest priority again (full reset, since a
// transient infra issue may have resolved by then).
func (t *Tunnel) negotiate(ctx context.Context, epoch uint64, startIdx int) error {
	t.mu.Lock()
	ring := make([]*provider.Descriptor, 0, len(t.candidates))
	for i := range t.candidates {
		desc := t.candidates[(startIdx+i)%len(t.candidates)]
		if !desc.Unusable {
			ring = append(ring, desc)
		}
	}
	authToken := t.cfg.AuthToken
	t.mu.Unlock()

	for _, desc := range ring {
		name := desc.Provider.Name()

		probeCtx, cancel := context.WithTimeout(ctx, provider.ProbeTimeout)
		ok := desc.Provider.Probe(probeCtx)
		cancel()
		if !ok {
			t.log.Debug("Provider %s failed probe, trying next candidate", name)
			continue
		}

		connCtx, cancel := context.WithTimeout(ctx, t.cfg.ConnectTimeout)
		err := desc.Provider.Connect(connCtx, desc.Endpoint, authToken)
		cancel()
		if err != nil {
			if errors.Is(err, provider.ErrUnusable) {
				t.mu.Lock()
				desc.Unusable = true
				t.mu.Unlock()
				t.log.Warn("Provider %s is unusable and excluded for the process lifetime: %v", name, err)
			} else {
				t.log.Warn("Provider %s connect failed: %v", name, err)
			}
			continue
		}

		t.mu.Lock()
		if epoch != t.epoch {
			// Disconnect happened while this connect was in flight; do not
			// revive a torn-down tunnel.
			t.mu.Unlock()
			desc.Provider.Disconnect()
			return nil
		}
		t.active = desc
		t.attempt = 0
		t.unhealthyTicks = 0
		t.setStateLocked(StateConnected)
		t.mu.Unlock()

		t.log.Info("Tunnel connected via provider %s", name)
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if epoch != t.epoch {
		return nil
	}
	t.setStateLocked(StateError)
	t.scheduleRetryLocked(epoch)
	return ErrNoCandidate
}

// scheduleRetryLocked arms the reconnection timer, or leaves the tunnel in
// Error for good once the policy gives up. Caller holds t.mu.
func (t *Tunnel) scheduleRetryLocked(epoch uint64) {
	t.attempt++
	if t.policy.GiveUp(t.attempt) {
		t.log.Error("Reconnection gave up after %d attempts; explicit Connect required", t.attempt-1)
		return
	}

	delay := t.policy.NextDelay(t.attempt - 1)
	t.log.Info("Scheduling reconnect attempt %d in %v", t.attempt, delay)
	t.retryTimer = time.AfterFunc(delay, func() { t.retry(epoch) })
}

// retry is the reconnection timer callback.
func (t *Tunnel) retry(epoch uint64) {
	t.mu.Lock()
	if epoch != t.epoch || t.state == StateDisconnected || t.state == StateConnected {
		t.mu.Unlock()
		return
	}
	t.retryTimer = nil
	t.setStateLocked(StateReconnecting)
	t.mu.Unlock()

	_ = t.negotiate(context.Background(), epoch, 0)
}

// Publish constructs an envelope (fresh id, current timestamp, configured
// origin) and hands it to the active provider. It fails with ErrNotConnected
// unless the state is Connected; nothing is queued while disconnected and
// callers own retry semantics.
func (t *Tunnel) Publish(ctx context.Context, channel, event string, payload envelope.Payload) error {
	t.mu.Lock()
	if t.state != StateConnected || t.active == nil {
		t.mu.Unlock()
		return provider.ErrNotConnected
	}
	active := t.active.Provider
	origin := t.cfg.Identity
	t.mu.Unlock()

	env := envelope.New(channel, event, payload, origin)
	if err := active.Send(ctx, env); err != nil {
		return fmt.Errorf("publish on %s: %w", channel, err)
	}
	return nil
}

// Subscribe registers a callback for a channel and returns its disposer.
func (t *Tunnel) Subscribe(channel string, callback registry.Callback) Unsubscribe {
	id := t.registry.Subscribe(channel, callback)
	var once sync.Once
	return func() {
		once.Do(func() { t.registry.Unsubscribe(id) })
	}
}

// Inject dispatches an envelope to local subscribers without touching the
// network. The presence tracker uses it for locally derived transitions.
func (t *Tunnel) Inject(env envelope.Envelope) {
	t.registry.Dispatch(env)
}

// SwitchProvider forces a provider change outside the automatic health loop.
// It runs the same disconnect/connect sequence as failover, so the inbound
// handler is never double-registered.
func (t *Tunnel) SwitchProvider(ctx context.Context, name string) error {
	t.mu.Lock()
	idx := -1
	for i, desc := range t.candidates {
		if desc.Provider.Name() == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		t.mu.Unlock()
		return fmt.Errorf("switch to %q: %w", name, ErrUnknownProvider)
	}
	target := t.candidates[idx]
	if target.Unusable {
		t.mu.Unlock()
		return fmt.Errorf("switch to %q: %w", name, provider.ErrUnusable)
	}
	if t.active == target {
		t.mu.Unlock()
		return nil
	}
	prev := t.active
	t.active = nil
	t.unhealthyTicks = 0
	t.takeOverNegotiationLocked()
	t.startLoopsLocked()
	t.setStateLocked(StateConnecting)
	epoch := t.epoch
	authToken := t.cfg.AuthToken
	t.mu.Unlock()

	if prev != nil {
		prev.Provider.Disconnect()
	}

	connCtx, cancel := context.WithTimeout(ctx, t.cfg.ConnectTimeout)
	err := target.Provider.Connect(connCtx, target.Endpoint, authToken)
	cancel()

	t.mu.Lock()
	defer t.mu.Unlock()
	if epoch != t.epoch {
		if err == nil {
			target.Provider.Disconnect()
		}
		return nil
	}
	if err != nil {
		t.setStateLocked(StateError)
		t.scheduleRetryLocked(epoch)
		return fmt.Errorf("switch to %q: %w", name, err)
	}
	t.active = target
	t.attempt = 0
	t.setStateLocked(StateConnected)
	t.log.Info("Tunnel switched to provider %s", name)
	return nil
}

// Disconnect tears down the active provider and halts any pending
// reconnection timer. It is safe to call from any state and takes effect
// immediately: the timer is cancelled synchronously and a connect attempt in
// flight is fenced off by the epoch bump.
func (t *Tunnel) Disconnect() {
	t.mu.Lock()
	t.epoch++
	if t.retryTimer != nil {
		t.retryTimer.Stop()
		t.retryTimer = nil
	}
	active := t.active
	t.active = nil
	cancel := t.loopCancel
	t.loopCancel = nil
	t.attempt = 0
	t.unhealthyTicks = 0
	t.setStateLocked(StateDisconnected)
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if active != nil {
		active.Provider.Disconnect()
	}
}

// setStateLocked records a transition. Caller holds t.mu.
func (t *Tunnel) setStateLocked(next State) {
	if t.state == next {
		return
	}
	t.log.Debug("Tunnel state %s -> %s", t.state, next)
	t.state = next
}

// startLoopsLocked launches the dispatch and health loops for a new
// connection session. Caller holds t.mu.
func (t *Tunnel) startLoopsLocked() {
	if t.loopCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.loopCancel = cancel
	t.inbound = make(chan envelope.Envelope, inboundBuffer)

	go t.dispatchLoop(ctx, t.inbound)
	go t.healthLoop(ctx)
}

// enqueue is the single inbound handler registered on every provider. It
// hands the frame to the dispatch loop without blocking the provider's
// receive goroutine; overflow is dropped.
func (t *Tunnel) enqueue(env envelope.Envelope) {
	t.mu.Lock()
	inbound := t.inbound
	running := t.loopCancel != nil
	t.mu.Unlock()

	if !running || inbound == nil {
		return
	}
	select {
	case inbound <- env:
	default:
		t.log.Warn("Inbound queue full, dropping envelope %s on channel %s", env.ID, env.Channel)
	}
}

// dispatchLoop delivers queued envelopes to the registry in arrival order.
// Running dispatch on its own goroutine keeps subscriber callbacks off the
// provider receive path, so a callback may call back into the tunnel freely.
func (t *Tunnel) dispatchLoop(ctx context.Context, inbound <-chan envelope.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-inbound:
			t.registry.Dispatch(env)
		}
	}
}

// healthLoop samples the active provider every tick. Sustained unhealthy
// samples trigger failover rather than immediate teardown, avoiding flapping
// on a single noisy sample.
func (t *Tunnel) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.checkHealth()
		}
	}
}

// checkHealth runs one health tick.
func (t *Tunnel) checkHealth() {
	t.mu.Lock()
	if t.state != StateConnected || t.active == nil {
		t.unhealthyTicks = 0
		t.mu.Unlock()
		return
	}
	active := t.active
	epoch := t.epoch
	t.mu.Unlock()

	snap := active.Provider.Health()

	t.mu.Lock()
	if epoch != t.epoch || t.active != active || t.state != StateConnected {
		t.mu.Unlock()
		return
	}
	if snap.IsHealthy {
		t.unhealthyTicks = 0
		t.mu.Unlock()
		return
	}
	t.unhealthyTicks++
	if t.unhealthyTicks < t.cfg.UnhealthyThreshold {
		t.mu.Unlock()
		return
	}

	// Sustained degradation: fail over to the next candidate.
	failedIdx := t.indexOfLocked(active)
	t.active = nil
	t.unhealthyTicks = 0
	t.setStateLocked(StateReconnecting)
	t.mu.Unlock()

	t.log.Warn("Provider %s unhealthy for %d checks, failing over", active.Provider.Name(), t.cfg.UnhealthyThreshold)
	active.Provider.Disconnect()
	_ = t.negotiate(context.Background(), epoch, failedIdx+1)
}

// indexOfLocked returns the candidate index of desc. Caller holds t.mu.
func (t *Tunnel) indexOfLocked(desc *provider.Descriptor) int {
	for i, d := range t.candidates {
		if d == desc {
			return i
		}
	}
	return 0
}

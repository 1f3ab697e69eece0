// Package provider defines the transport capability contract the tunnel
// orchestrator depends on. Concrete transports (websocket, MQTT, Redis
// Pub/Sub, HTTP long-poll) implement Provider and are interchangeable.
package provider

import (
	"context"
	"time"

	"github.com/openagora/tunnel/internal/envelope"
)

// ProbeTimeout bounds the environment capability check. A slow probe blocks
// provider negotiation, so probes must answer within this window.
const ProbeTimeout = 250 * time.Millisecond

// MessageHandler is the single inbound handler a provider invokes once per
// received frame, preserving network-arrival order.
type MessageHandler func(envelope.Envelope)

// HealthSnapshot is the best-known health state of a provider. It is cheap to
// read; providers update it from their own traffic rather than performing a
// live round trip on every call.
type HealthSnapshot struct {
	LatencyMs int64
	IsHealthy bool
}

// Provider is the transport capability contract.
//
// Connect must be idempotent when already connected. Disconnect must be safe
// to call repeatedly and guarantees no further OnMessage callback invocations
// after it returns. Send fails fast with ErrNotConnected instead of queueing.
type Provider interface {
	// Name identifies the provider in configuration and logs.
	Name() string

	// Probe reports whether this transport can work in the current
	// environment. It must return within ProbeTimeout.
	Probe(ctx context.Context) bool

	// Connect establishes the underlying channel to endpoint, forwarding the
	// opaque authToken unvalidated.
	Connect(ctx context.Context, endpoint, authToken string) error

	// Disconnect releases all underlying resources.
	Disconnect()

	// Send transmits one envelope.
	Send(ctx context.Context, env envelope.Envelope) error

	// OnMessage registers the single inbound handler. Registering replaces
	// any previous handler.
	OnMessage(handler MessageHandler)

	// Health returns the best-known health snapshot without blocking.
	Health() HealthSnapshot
}

// Descriptor pairs a provider with its fallback priority and the endpoint it
// should connect to. Candidate order is descending priority; mutated only by
// configuration, read by the orchestrator during negotiation.
type Descriptor struct {
	Provider Provider
	Priority int
	Endpoint string

	// Unusable marks a provider that failed catastrophically (resource
	// exhaustion). It is excluded from negotiation for the process lifetime.
	Unusable bool
}

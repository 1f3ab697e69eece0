// Package envelope defines the unit of transmission shared by all transport
// providers and the channel registry.
package envelope

import (
	"time"

	"github.com/google/uuid"
)

// Payload is the canonical alias for an opaque message body. The tunnel never
// inspects or mutates it; schema validation belongs to the domain adapters.
type Payload = []byte

// Metadata carries per-envelope bookkeeping fields.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	OriginID  string    `json:"originId,omitempty"`
}

// Envelope is the atomic transmitted unit. ID is globally unique and serves
// as the dedup key: redelivery with the same ID is a no-op at the registry.
type Envelope struct {
	ID       string   `json:"id"`
	Channel  string   `json:"channel"`
	Event    string   `json:"event"`
	Payload  Payload  `json:"payload,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// New builds an envelope with a fresh unique ID and the current timestamp.
func New(channel, event string, payload Payload, originID string) Envelope {
	return Envelope{
		ID:      uuid.NewString(),
		Channel: channel,
		Event:   event,
		Payload: payload,
		Metadata: Metadata{
			Timestamp: time.Now().UTC(),
			OriginID:  originID,
		},
	}
}

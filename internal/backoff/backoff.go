// Package backoff implements the reconnection policy: exponential delays
// with jitter and a hard cap, plus the give-up decision.
package backoff

import (
	"time"

	"github.com/jpillora/backoff"
)

// UnlimitedAttempts disables the retry cap. This is the documented default
// for long-lived clients: retry forever with capped delays.
const UnlimitedAttempts = 0

// Policy computes retry delays from the attempt counter. The zero attempt is
// the first retry. Policy itself is stateless; the orchestrator owns the
// attempt counter.
type Policy struct {
	b           *backoff.Backoff
	maxAttempts int
}

// NewPolicy builds a policy with the given base delay, cap and attempt limit.
// maxAttempts == UnlimitedAttempts means never give up.
func NewPolicy(base, max time.Duration, maxAttempts int) *Policy {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max < base {
		max = 30 * time.Second
	}
	return &Policy{
		b: &backoff.Backoff{
			Min:    base,
			Max:    max,
			Factor: 2,
			Jitter: true,
		},
		maxAttempts: maxAttempts,
	}
}

// NextDelay returns the delay before retry number attempt (0-based). Delays
// grow exponentially with jitter and never exceed the cap.
func (p *Policy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.b.ForAttempt(float64(attempt))
}

// MaxDelay returns the configured delay cap.
func (p *Policy) MaxDelay() time.Duration {
	return p.b.Max
}

// GiveUp reports whether the attempt counter has exceeded the configured
// limit. Always false when the limit is UnlimitedAttempts.
func (p *Policy) GiveUp(attempt int) bool {
	if p.maxAttempts == UnlimitedAttempts {
		return false
	}
	return attempt > p.maxAttempts
}

package provider

import "errors"

// Sentinel errors shared by all providers and surfaced through the
// orchestrator's typed results. Wrap with fmt.Errorf("...: %w", err) and
// check with errors.Is.
var (
	// ErrNotConnected is returned by Send when the underlying channel is not
	// established. Sends are never silently queued.
	ErrNotConnected = errors.New("provider not connected")

	// ErrConnectTimeout is returned when the underlying channel could not be
	// established within the configured deadline.
	ErrConnectTimeout = errors.New("provider connect timeout")

	// ErrRejected is returned when the remote end refused the connection.
	ErrRejected = errors.New("provider rejected connection")

	// ErrSendFailed is returned when an established channel failed to
	// transmit a frame.
	ErrSendFailed = errors.New("provider send failed")

	// ErrUnusable marks a provider that failed catastrophically and must be
	// excluded from negotiation for the remainder of the process lifetime.
	ErrUnusable = errors.New("provider unusable")
)

package tunnel

// State is the connection state of the tunnel. Exactly one state holds at
// any time; every state has a defined reaction to connect, disconnect, error
// and health-degraded events.
type State int

const (
	// StateDisconnected means no provider is active and nothing is pending.
	StateDisconnected State = iota
	// StateConnecting means candidate negotiation is in progress.
	StateConnecting
	// StateConnected means the active provider is established.
	StateConnected
	// StateReconnecting means a retry or failover attempt is in progress or
	// scheduled.
	StateReconnecting
	// StateError means negotiation exhausted its candidates. The state is
	// terminal once the retry policy gives up, until an explicit Connect.
	StateError
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

package k6

// SessionState represents the lifecycle stage of a protocol session.
type SessionState uint32

// Session states.
const (
	// DisconnectedState indicates that no handshake has completed yet, or the
	// port was closed.
	DisconnectedState SessionState = iota
	// IdleState indicates that the handshake completed and no operation is
	// running.
	IdleState
	// BusyState indicates that a composite operation holds the session.
	BusyState
)

// IsConnected returns if the session has completed the handshake.
func (s SessionState) IsConnected() bool { return s != DisconnectedState }

// String returns the state's audit-log name.
func (s SessionState) String() string {
	switch s {
	case DisconnectedState:
		return "DISCONNECTED"
	case IdleState:
		return "IDLE"
	case BusyState:
		return "BUSY"
	default:
		return "UNKNOWN"
	}
}

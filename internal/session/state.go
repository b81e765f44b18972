package session

// State is the lifecycle state of a Session.
type State int

const (
	StateInitializing State = iota
	StateConnecting
	StateReady
	StateStreaming
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateConnecting:
		return "CONNECTING"
	case StateReady:
		return "READY"
	case StateStreaming:
		return "STREAMING"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateFailed
}

// IsOpen reports whether the upstream connection is up and accepting frames.
func (s State) IsOpen() bool {
	return s == StateReady || s == StateStreaming
}

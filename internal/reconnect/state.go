package reconnect

// State is the connection lifecycle state of a client.
type State uint32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateJoined
	StateClosing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateJoined:
		return "joined"
	case StateClosing:
		return "closing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Active reports whether a connection exists or is being established.
func (s State) Active() bool {
	return s == StateConnecting || s == StateAuthenticating || s == StateJoined
}

// Open reports whether the connection is established and can carry frames.
func (s State) Open() bool {
	return s == StateAuthenticating || s == StateJoined
}

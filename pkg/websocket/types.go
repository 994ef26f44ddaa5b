package websocket

import "time"

// MessageType represents a WebSocket message type.
// Values match RFC 6455 opcodes where applicable.
type MessageType uint8

const (
	// MessageText is a text data frame.
	MessageText MessageType = 1
	// MessageBinary is a binary data frame.
	MessageBinary MessageType = 2
	// MessageClose is a close control frame.
	MessageClose MessageType = 8
	// MessagePing is a ping control frame.
	MessagePing MessageType = 9
	// MessagePong is a pong control frame.
	MessagePong MessageType = 10
)

// CloseCode is a WebSocket close code.
type CloseCode uint16

const (
	// CloseNormal indicates a normal closure.
	CloseNormal CloseCode = 1000
	// CloseGoingAway indicates the peer is going away.
	CloseGoingAway CloseCode = 1001
	// CloseAbnormal is reported when the connection ended without a close frame.
	CloseAbnormal CloseCode = 1006
)

// State is the lifecycle state of a single Transport.
type State uint32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// OverflowPolicy defines outbound queue behavior when full.
// Neither policy blocks the caller.
type OverflowPolicy uint8

const (
	// OverflowDropNewest drops the incoming payload if the queue is full.
	OverflowDropNewest OverflowPolicy = iota
	// OverflowDropOldest drops the oldest queued payload to make room.
	OverflowDropOldest
)

const (
	DefaultWriteQueueSize   = 256
	DefaultWriteTimeout     = 10 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

// Listener receives transport events. Nil callbacks are skipped.
//
// For one Open call exactly one of OnOpen or OnError fires. After OnOpen,
// OnMessage fires per inbound data frame and OnClose fires exactly once.
type Listener struct {
	OnOpen    func()
	OnError   func(err error)
	OnMessage func(payload []byte)
	OnClose   func(code CloseCode, err error)
}

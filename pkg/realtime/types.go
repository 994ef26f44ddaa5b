package realtime

import (
	"realtime/internal/presence"
	"realtime/internal/protocol"
	"realtime/internal/reconnect"
	"realtime/internal/router"
)

type (
	Identity     = protocol.Identity
	ID           = protocol.ID
	Envelope     = protocol.Envelope
	Handler      = router.Handler
	Subscription = router.Subscription
	State        = reconnect.State
	TypingEntry  = presence.TypingEntry
	TypingEvent  = presence.TypingEvent
	Notifier     = presence.Notifier
)

const (
	StateDisconnected   = reconnect.StateDisconnected
	StateConnecting     = reconnect.StateConnecting
	StateAuthenticating = reconnect.StateAuthenticating
	StateJoined         = reconnect.StateJoined
	StateClosing        = reconnect.StateClosing
	StateFailed         = reconnect.StateFailed
)

// Host events delivered through Client.Subscribe.
const (
	EventNewContent    = presence.EventNewContent
	EventNotification  = presence.EventNotification
	EventTyping        = presence.EventTyping
	EventRoomPresence  = presence.EventRoomPresence
	EventAuthenticated = presence.EventAuthenticated
	EventState         = "state"
)

// SessionProvider exposes the authenticated session of the host application.
type SessionProvider interface {
	// AccessToken returns the current bearer credential.
	AccessToken() string
	// CurrentUser returns the signed-in identity, ok is false when signed out.
	CurrentUser() (Identity, bool)
}

// StateEvent is the payload of EventState.
type StateEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
}

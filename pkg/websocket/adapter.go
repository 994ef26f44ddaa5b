package websocket

import (
	"context"
	"net/http"
)

// Conn is a minimal interface for a WebSocket connection.
// Read is called from one goroutine and Write from another.
type Conn interface {
	Read() (MessageType, []byte, error)
	Write(msgType MessageType, payload []byte) error
	Close(code CloseCode, reason string) error
}

// Dialer creates new connections. The token travels out of band, in the
// upgrade request, never as a protocol message.
type Dialer interface {
	Dial(ctx context.Context, url string, token string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string, token string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url string, token string) (Conn, error) {
	return f(ctx, url, token)
}

// AuthHeader builds the upgrade request headers carrying the bearer token.
func AuthHeader(token string) http.Header {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return header
}

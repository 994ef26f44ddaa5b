package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
)

// HeaderConnectionID carries a per-dial identifier for server-side correlation.
const HeaderConnectionID = "X-Connection-Id"

// DialerOption configures the gorilla backed dialer.
type DialerOption struct {
	// HandshakeTimeout bounds the upgrade handshake. Optional; default DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds each frame write. Optional; default DefaultWriteTimeout.
	WriteTimeout time.Duration
	// ReadTimeout extends the read deadline on every frame and pong when >0. Optional; default 0 (disabled).
	ReadTimeout time.Duration
	// Header is merged into the upgrade request. Optional.
	Header http.Header
}

type dialer struct {
	opt    DialerOption
	dialer *gws.Dialer
}

// NewDialer returns a Dialer backed by gorilla/websocket.
func NewDialer(option ...DialerOption) Dialer {
	var opt DialerOption
	if len(option) != 0 {
		opt = option[0]
	}
	if opt.HandshakeTimeout <= 0 {
		opt.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opt.WriteTimeout <= 0 {
		opt.WriteTimeout = DefaultWriteTimeout
	}
	return &dialer{
		opt: opt,
		dialer: &gws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opt.HandshakeTimeout,
		},
	}
}

func (d *dialer) Dial(ctx context.Context, url string, token string) (Conn, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	header := AuthHeader(token)
	for key, values := range d.opt.Header {
		for _, v := range values {
			header.Add(key, v)
		}
	}
	header.Set(HeaderConnectionID, uuid.NewString())

	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, errors.Wrap(err, "dial "+url+" status "+resp.Status)
		}
		return nil, errors.Wrap(err, "dial "+url)
	}
	return newGorillaConn(conn, d.opt.WriteTimeout, d.opt.ReadTimeout), nil
}

type gorillaConn struct {
	conn         *gws.Conn
	writeTimeout time.Duration
	readTimeout  time.Duration
	closeOnce    sync.Once
}

func newGorillaConn(conn *gws.Conn, writeTimeout, readTimeout time.Duration) *gorillaConn {
	c := &gorillaConn{
		conn:         conn,
		writeTimeout: writeTimeout,
		readTimeout:  readTimeout,
	}
	if readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})
	}
	return c
}

func (c *gorillaConn) Read() (MessageType, []byte, error) {
	msgType, payload, err := c.conn.ReadMessage()
	if err != nil {
		return 0, nil, err
	}
	if c.readTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	return MessageType(msgType), payload, nil
}

func (c *gorillaConn) Write(msgType MessageType, payload []byte) error {
	deadline := time.Now().Add(c.writeTimeout)
	switch msgType {
	case MessagePing, MessagePong:
		return c.conn.WriteControl(int(msgType), payload, deadline)
	case MessageText, MessageBinary:
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		return c.conn.WriteMessage(int(msgType), payload)
	default:
		return ErrUnsupportedType
	}
}

func (c *gorillaConn) Close(code CloseCode, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		if code != 0 {
			msg := gws.FormatCloseMessage(int(code), reason)
			_ = c.conn.WriteControl(gws.CloseMessage, msg, time.Now().Add(c.writeTimeout))
		}
		err = c.conn.Close()
	})
	return err
}

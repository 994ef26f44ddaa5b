// Package realtime is the session client for the blog's live features:
// presence counts, per-post rooms, typing indicators and live content.
package realtime

import (
	"context"
	"errors"

	"github.com/yanun0323/logs"

	"realtime/internal/obs"
	"realtime/internal/presence"
	"realtime/internal/protocol"
	"realtime/internal/reconnect"
	"realtime/internal/router"
	"realtime/pkg/websocket"
)

var (
	ErrNilSession       = errors.New("realtime: nil session provider")
	ErrNotAuthenticated = reconnect.ErrNotAuthenticated
)

// Client composes the transport, reconnection, routing and presence
// components into one object owned by the host application.
type Client struct {
	opt     Option
	session SessionProvider

	inbound  *router.Router
	events   *router.Router
	ctrl     *reconnect.Controller
	presence *presence.Manager
}

// New builds a disconnected client.
func New(session SessionProvider, option ...Option) (*Client, error) {
	if session == nil {
		return nil, ErrNilSession
	}
	var opt Option
	if len(option) != 0 {
		opt = option[0]
	}
	opt.init()
	cfg := opt.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		opt:     opt,
		session: session,
		inbound: router.New(router.Option{Metrics: opt.Metrics, Name: "realtime inbound"}),
		events:  router.New(router.Option{Name: "realtime events"}),
	}

	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts == 0 {
		maxAttempts = -1
	}
	ctrl, err := reconnect.New(reconnect.Config{
		URL:         cfg.URL(),
		MaxAttempts: maxAttempts,
		Backoff: reconnect.Backoff{
			Delay:  cfg.ReconnectDelay,
			Max:    cfg.ReconnectMaxDelay,
			Factor: cfg.ReconnectMultiplier,
		},
		Scheduler: opt.Scheduler,
		Metrics:   opt.Metrics,
	}, c.newTransport, c.credentials, reconnect.Hooks{
		OnMessage:     c.inbound.Dispatch,
		OnOpen:        c.onOpen,
		OnStateChange: c.onStateChange,
		OnDisconnect:  c.onDisconnect,
		OnFailure:     c.onFailure,
	})
	if err != nil {
		return nil, err
	}
	c.ctrl = ctrl

	c.presence = presence.New(ctrl, presence.Option{
		DefaultRoom:   cfg.DefaultRoom,
		TypingTTL:     cfg.TypingTTL,
		SweepInterval: cfg.SweepInterval,
		Scheduler:     opt.Scheduler,
		Notifier:      opt.Notifier,
		Publish:       c.publish,
		Identity:      session.CurrentUser,
	})
	c.presence.Register(c.inbound)
	return c, nil
}

// Connect opens the connection unless one is already active. It fails only
// when nobody is signed in.
func (c *Client) Connect(ctx context.Context) error {
	return c.ctrl.Connect(ctx)
}

// Disconnect cancels pending retries, closes the connection, stops the
// typing sweep and clears presence state. It is idempotent.
func (c *Client) Disconnect() {
	c.ctrl.Disconnect()
	c.presence.Stop()
	c.presence.Reset()
}

// JoinRoom moves the client into room, leaving the previous one.
func (c *Client) JoinRoom(room string) bool {
	return c.presence.JoinRoom(room)
}

// LeaveRoom leaves room if it is the current room.
func (c *Client) LeaveRoom(room string) bool {
	return c.presence.LeaveRoom(room)
}

// SendTypingStatus announces typing activity on post. Best effort.
func (c *Client) SendTypingStatus(post string, typing bool) bool {
	return c.presence.SendTypingStatus(post, typing)
}

// SendMessage posts a chat message to room.
func (c *Client) SendMessage(room, message string) bool {
	return c.presence.SendMessage(room, message)
}

// RequestOnlineCount asks the server for a fresh online count.
func (c *Client) RequestOnlineCount() bool {
	return c.presence.RequestOnlineCount()
}

// Emit sends an arbitrary envelope. It is dropped when not connected.
func (c *Client) Emit(msgType string, data any) bool {
	if !c.ctrl.Connected() {
		return false
	}
	return c.ctrl.Send(msgType, data)
}

// On registers a handler for an inbound message type.
func (c *Client) On(msgType string, handler Handler) *Subscription {
	return c.inbound.Subscribe(msgType, handler)
}

// Off removes a handler registered with On.
func (c *Client) Off(msgType string, sub *Subscription) bool {
	return c.inbound.Unsubscribe(msgType, sub)
}

// Subscribe registers an observer for a host event such as EventNewContent.
func (c *Client) Subscribe(event string, handler Handler) *Subscription {
	return c.events.Subscribe(event, handler)
}

// Unsubscribe removes an observer registered with Subscribe.
func (c *Client) Unsubscribe(event string, sub *Subscription) bool {
	return c.events.Unsubscribe(event, sub)
}

func (c *Client) State() State {
	return c.ctrl.State()
}

func (c *Client) Connected() bool {
	return c.ctrl.Connected()
}

func (c *Client) OnlineCount() int {
	return c.presence.OnlineCount()
}

func (c *Client) CurrentRoom() string {
	return c.presence.CurrentRoom()
}

// TypingUsers returns the users currently typing on post.
func (c *Client) TypingUsers(post string) []TypingEntry {
	return c.presence.TypingUsers(post)
}

// ReconnectAttempts returns the retries since the last successful open.
func (c *Client) ReconnectAttempts() int {
	return c.ctrl.Attempts()
}

func (c *Client) Stats() obs.Snapshot {
	return c.opt.Metrics.Snapshot()
}

func (c *Client) newTransport(listener websocket.Listener) reconnect.Transport {
	return websocket.New(c.opt.Dialer, listener, websocket.Option{
		WriteQueueSize: c.opt.Config.WriteQueueSize,
		PingInterval:   c.opt.Config.PingInterval,
	})
}

func (c *Client) credentials() (string, protocol.Identity, bool) {
	identity, ok := c.session.CurrentUser()
	if !ok {
		return "", protocol.Identity{}, false
	}
	return c.session.AccessToken(), identity, true
}

func (c *Client) onOpen(retries int) {
	c.presence.Start()
	if retries > 0 {
		c.opt.Notifier.Success(noticeConnectionRestored)
	}
}

func (c *Client) onStateChange(from, to reconnect.State) {
	c.publish(EventState, StateEvent{From: from.String(), To: to.String()})
}

func (c *Client) onDisconnect() {
	c.presence.Reset()
}

func (c *Client) onFailure(attempts int) {
	logs.Errorf("realtime: giving up on %s after %d reconnect attempts", c.opt.Config.URL(), attempts)
	c.presence.Stop()
	c.opt.Notifier.Error(noticeConnectionFailed)
}

func (c *Client) publish(event string, payload any) {
	env, err := protocol.New(event, payload)
	if err != nil {
		logs.Errorf("realtime: encode event %s, err: %+v", event, err)
		return
	}
	c.events.Deliver(env)
}

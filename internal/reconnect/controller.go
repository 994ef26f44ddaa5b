// Package reconnect keeps one authenticated realtime connection alive with a
// bounded number of retries.
package reconnect

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/yanun0323/logs"

	"realtime/internal/obs"
	"realtime/internal/protocol"
	"realtime/internal/schedule"
	"realtime/pkg/websocket"
)

// Transport is the part of websocket.Transport the controller drives.
type Transport interface {
	Open(ctx context.Context, url string, token string) error
	Send(msgType websocket.MessageType, payload []byte) bool
	Close()
}

// Factory builds a fresh single-use transport wired to listener.
type Factory func(listener websocket.Listener) Transport

// Credentials returns the bearer token and identity of the current session.
// ok is false when nobody is signed in.
type Credentials func() (token string, identity protocol.Identity, ok bool)

// Hooks observe the controller. Every hook is optional and is invoked
// outside the controller lock.
type Hooks struct {
	// OnMessage receives every inbound frame of the current connection.
	OnMessage func(raw []byte)
	// OnOpen fires after the authenticate envelope was sent. retries is the
	// number of retries it took to get there.
	OnOpen func(retries int)
	// OnStateChange fires on every state transition.
	OnStateChange func(from, to State)
	// OnDisconnect fires whenever the connection is gone, explicitly or not.
	OnDisconnect func()
	// OnFailure fires once when the retry budget is exhausted.
	OnFailure func(attempts int)
}

type Config struct {
	// URL is the realtime endpoint.
	URL string
	// MaxAttempts bounds consecutive retries after an unexpected close.
	//
	// Optional; default DefaultMaxAttempts, negative disables retries
	MaxAttempts int
	// Backoff sets the wait between retries.
	//
	// Optional; default DefaultBackoff
	Backoff Backoff
	// Scheduler runs retry timers.
	//
	// Optional; default schedule.System
	Scheduler schedule.Scheduler
	// Metrics counts sends, reconnects and failures.
	//
	// Optional; default nil (disabled)
	Metrics *obs.Metrics
}

func (cfg *Config) init() {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = schedule.System()
	}
}

// Controller owns the connection state machine. Each physical connection
// gets its own generation; events from older generations are ignored.
type Controller struct {
	cfg         Config
	factory     Factory
	credentials Credentials
	hooks       Hooks

	mu        sync.Mutex
	ctx       context.Context
	state     State
	gen       uint64
	attempts  int
	policy    backoff.BackOff
	retry     schedule.Timer
	transport Transport
}

// New builds a disconnected controller.
func New(cfg Config, factory Factory, credentials Credentials, hooks Hooks) (*Controller, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	if cfg.URL == "" {
		return nil, ErrEmptyURL
	}
	cfg.init()

	return &Controller{
		cfg:         cfg,
		factory:     factory,
		credentials: credentials,
		hooks:       hooks,
		policy:      cfg.Backoff.Policy(),
	}, nil
}

// Connect starts a connection unless one is already active. It resets the
// retry budget, so it is also the way out of StateFailed.
func (c *Controller) Connect(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	token, _, ok := c.session()
	if !ok {
		return ErrNotAuthenticated
	}

	c.mu.Lock()
	if c.state.Active() || c.state == StateClosing {
		c.mu.Unlock()
		return nil
	}
	c.ctx = ctx
	c.attempts = 0
	c.policy.Reset()
	c.stopRetryLocked()
	transport, gen, from := c.prepareLocked()
	c.mu.Unlock()

	c.notify(from, StateConnecting)
	c.open(ctx, transport, gen, token)
	return nil
}

// Disconnect cancels any pending retry and closes the connection. It is a
// no-op when nothing is connected or pending.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisconnected && c.transport == nil && c.retry == nil {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.stopRetryLocked()
	transport := c.transport
	c.transport = nil
	from := c.state
	c.state = StateClosing
	c.mu.Unlock()

	c.notify(from, StateClosing)
	if transport != nil {
		transport.Close()
	}

	c.mu.Lock()
	c.attempts = 0
	settled := c.state == StateClosing
	if settled {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if settled {
		c.notify(StateClosing, StateDisconnected)
	}
	logs.Infof("reconnect: disconnected from %s", c.cfg.URL)
	if c.hooks.OnDisconnect != nil {
		c.hooks.OnDisconnect()
	}
}

// MarkJoined records that the server acknowledged the session.
func (c *Controller) MarkJoined() {
	c.mu.Lock()
	if !c.state.Open() || c.state == StateJoined {
		c.mu.Unlock()
		return
	}
	from := c.state
	c.state = StateJoined
	c.mu.Unlock()

	c.notify(from, StateJoined)
}

// Send encodes and writes an envelope without blocking. It reports false when
// the connection is not open or the frame was dropped.
func (c *Controller) Send(msgType string, data any) bool {
	c.mu.Lock()
	transport := c.transport
	open := c.state.Open()
	c.mu.Unlock()

	if transport == nil || !open {
		c.cfg.Metrics.ObserveSend(false)
		logs.Debugf("reconnect: drop %s, not connected", msgType)
		return false
	}

	payload, err := protocol.Encode(msgType, data)
	if err != nil {
		c.cfg.Metrics.ObserveSend(false)
		logs.Errorf("reconnect: encode %s, err: %+v", msgType, err)
		return false
	}
	ok := transport.Send(websocket.MessageText, payload)
	c.cfg.Metrics.ObserveSend(ok)
	return ok
}

// Connected reports whether frames can currently be sent.
func (c *Controller) Connected() bool {
	return c.State().Open()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the number of retries since the last successful open.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Controller) session() (string, protocol.Identity, bool) {
	if c.credentials == nil {
		return "", protocol.Identity{}, false
	}
	return c.credentials()
}

// prepareLocked installs a new transport generation and moves to StateConnecting.
func (c *Controller) prepareLocked() (Transport, uint64, State) {
	c.gen++
	gen := c.gen
	transport := c.factory(websocket.Listener{
		OnOpen:    func() { c.handleOpen(gen) },
		OnError:   func(err error) { c.handleClose(gen, err) },
		OnMessage: func(raw []byte) { c.handleMessage(gen, raw) },
		OnClose:   func(_ websocket.CloseCode, err error) { c.handleClose(gen, err) },
	})
	c.transport = transport
	from := c.state
	c.state = StateConnecting
	return transport, gen, from
}

func (c *Controller) open(ctx context.Context, transport Transport, gen uint64, token string) {
	logs.Infof("reconnect: connecting to %s", c.cfg.URL)
	if err := transport.Open(ctx, c.cfg.URL, token); err != nil {
		c.handleClose(gen, err)
	}
}

func (c *Controller) handleOpen(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	retries := c.attempts
	c.attempts = 0
	c.policy.Reset()
	from := c.state
	c.state = StateAuthenticating
	c.mu.Unlock()

	c.notify(from, StateAuthenticating)

	if _, identity, ok := c.session(); ok {
		c.Send(protocol.TypeAuthenticate, identity)
	} else {
		logs.Warnf("reconnect: connection open without session, skip authenticate")
	}
	if c.hooks.OnOpen != nil {
		c.hooks.OnOpen(retries)
	}
}

func (c *Controller) handleMessage(gen uint64, raw []byte) {
	c.mu.Lock()
	current := gen == c.gen
	c.mu.Unlock()

	if current && c.hooks.OnMessage != nil {
		c.hooks.OnMessage(raw)
	}
}

// handleClose treats establishment failures and closes of the current
// connection alike. It retries while the budget allows, then fails.
func (c *Controller) handleClose(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen = c.gen
	c.transport = nil
	from := c.state

	if c.ctx != nil && c.ctx.Err() != nil {
		c.state = StateDisconnected
		c.mu.Unlock()

		c.notify(from, StateDisconnected)
		c.disconnected()
		return
	}

	if c.attempts >= c.cfg.MaxAttempts {
		attempts := c.attempts
		c.state = StateFailed
		c.mu.Unlock()

		c.cfg.Metrics.IncFailure()
		logs.Errorf("reconnect: give up after %d attempts, err: %+v", attempts, cause)
		c.notify(from, StateFailed)
		c.disconnected()
		if c.hooks.OnFailure != nil {
			c.hooks.OnFailure(attempts)
		}
		return
	}

	c.attempts++
	attempt := c.attempts
	wait := c.cfg.Backoff.next(c.policy)
	c.state = StateDisconnected
	c.retry = c.cfg.Scheduler.AfterFunc(wait, func() { c.fireRetry(gen) })
	c.mu.Unlock()

	c.cfg.Metrics.IncReconnect()
	logs.Warnf("reconnect: connection lost, retry %d/%d in %s, err: %+v", attempt, c.cfg.MaxAttempts, wait, cause)
	c.notify(from, StateDisconnected)
	c.disconnected()
}

func (c *Controller) fireRetry(gen uint64) {
	token, _, ok := c.session()

	c.mu.Lock()
	if gen != c.gen || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	if !ok {
		c.mu.Unlock()
		logs.Warnf("reconnect: session ended, stop retrying")
		return
	}
	ctx := c.ctx
	transport, next, from := c.prepareLocked()
	c.mu.Unlock()

	c.notify(from, StateConnecting)
	c.open(ctx, transport, next, token)
}

func (c *Controller) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *Controller) disconnected() {
	if c.hooks.OnDisconnect != nil {
		c.hooks.OnDisconnect()
	}
}

func (c *Controller) notify(from, to State) {
	if from == to {
		return
	}
	logs.Debugf("reconnect: state %s -> %s", from, to)
	if c.hooks.OnStateChange != nil {
		c.hooks.OnStateChange(from, to)
	}
}

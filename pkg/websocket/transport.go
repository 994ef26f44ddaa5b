package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/yanun0323/logs"
)

// Option defines the transport runtime configuration.
type Option struct {
	// WriteQueueSize is the outbound queue capacity. Optional; default DefaultWriteQueueSize.
	WriteQueueSize int
	// WriteOverflow sets the policy when the outbound queue is full. Optional; default OverflowDropNewest.
	WriteOverflow OverflowPolicy
	// PingInterval enables periodic ping frames when >0. Optional; default 0 (disabled).
	PingInterval time.Duration
	// BufferPool recycles outbound buffers. Optional; default DefaultBufferPool.
	BufferPool *BufferPool
}

func (opt *Option) init() {
	if opt.WriteQueueSize <= 0 {
		opt.WriteQueueSize = DefaultWriteQueueSize
	}
	if opt.BufferPool == nil {
		opt.BufferPool = DefaultBufferPool()
	}
}

// Transport owns exactly one physical connection. It performs no
// interpretation of payloads. A Transport is single use: once closed, open a
// new one.
type Transport struct {
	opt      Option
	dialer   Dialer
	listener Listener
	writer   *writer

	state atomic.Uint32

	mu         sync.Mutex
	conn       Conn
	cancel     context.CancelFunc
	closing    bool
	finishOnce sync.Once
	done       chan struct{}
}

// New builds an idle transport.
func New(dialer Dialer, listener Listener, option ...Option) *Transport {
	var opt Option
	if len(option) != 0 {
		opt = option[0]
	}
	opt.init()

	return &Transport{
		opt:      opt,
		dialer:   dialer,
		listener: listener,
		writer:   newWriter(opt.BufferPool, opt.WriteQueueSize, opt.WriteOverflow),
		done:     make(chan struct{}),
	}
}

// Open starts establishing the connection in the background and returns
// immediately. The outcome is reported through the listener.
func (t *Transport) Open(ctx context.Context, url string, token string) error {
	if t.dialer == nil {
		return ErrNilDialer
	}
	if !t.state.CompareAndSwap(uint32(StateIdle), uint32(StateConnecting)) {
		return ErrAlreadyOpened
	}

	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	go t.establish(ctx, url, token)
	return nil
}

// Send enqueues a frame without blocking. It reports false and drops the
// payload when the transport is not open or the queue is full.
func (t *Transport) Send(msgType MessageType, payload []byte) bool {
	if err := t.writer.Send(msgType, payload); err != nil {
		logs.Warnf("websocket: drop outbound frame, state: %s, err: %+v", t.State(), err)
		return false
	}
	return true
}

// Close ends the connection. It is idempotent.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return
	}
	t.closing = true
	conn := t.conn
	cancel := t.cancel
	t.mu.Unlock()

	if conn != nil {
		t.finish(conn, CloseNormal, nil, true)
		return
	}
	if t.state.CompareAndSwap(uint32(StateIdle), uint32(StateClosed)) {
		close(t.done)
		return
	}
	if cancel != nil {
		cancel()
	}
}

// State reports the current transport state.
func (t *Transport) State() State {
	return State(t.state.Load())
}

// Done is closed once the terminal event (OnError or OnClose) was emitted.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

func (t *Transport) establish(ctx context.Context, url string, token string) {
	conn, err := t.dialer.Dial(ctx, url, token)

	t.mu.Lock()
	if err == nil && t.closing {
		_ = conn.Close(CloseNormal, "closed_before_open")
		err = ErrClosedBeforeOpen
	}
	if err != nil {
		cancel := t.cancel
		t.mu.Unlock()

		t.state.Store(uint32(StateClosed))
		cancel()
		logs.Warnf("websocket: open %s failed, err: %+v", url, err)
		if t.listener.OnError != nil {
			t.listener.OnError(err)
		}
		close(t.done)
		return
	}
	t.conn = conn
	t.state.Store(uint32(StateOpen))
	t.writer.SetConnected(true)
	t.mu.Unlock()

	logs.Debugf("websocket: connection open, url: %s", url)
	if t.listener.OnOpen != nil {
		t.listener.OnOpen()
	}

	go t.writeLoop(ctx, conn)
	t.readLoop(conn)
}

func (t *Transport) readLoop(conn Conn) {
	for {
		msgType, payload, err := conn.Read()
		if err != nil {
			t.finish(conn, closeCodeOf(err), err, false)
			return
		}
		if msgType != MessageText && msgType != MessageBinary {
			continue
		}
		if len(payload) == 0 {
			continue
		}
		if t.listener.OnMessage != nil {
			t.listener.OnMessage(payload)
		}
	}
}

func (t *Transport) writeLoop(ctx context.Context, conn Conn) {
	var ping <-chan time.Time
	if t.opt.PingInterval > 0 {
		ticker := time.NewTicker(t.opt.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			t.finish(conn, CloseNormal, ctx.Err(), true)
			return
		case frame := <-t.writer.Frames():
			err := conn.Write(frame.kind, frame.buf)
			t.writer.release(frame)
			if err != nil {
				t.finish(conn, CloseAbnormal, err, false)
				return
			}
		case <-ping:
			if err := conn.Write(MessagePing, nil); err != nil {
				t.finish(conn, CloseAbnormal, err, false)
				return
			}
		}
	}
}

func (t *Transport) finish(conn Conn, code CloseCode, cause error, local bool) {
	t.finishOnce.Do(func() {
		t.state.Store(uint32(StateClosed))
		t.writer.SetConnected(false)
		if dropped := t.writer.Drain(); dropped > 0 {
			logs.Warnf("websocket: dropped %d queued frames on close", dropped)
		}

		t.mu.Lock()
		cancel := t.cancel
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		if local {
			_ = conn.Close(code, "client_close")
		} else {
			_ = conn.Close(0, "")
			logs.Infof("websocket: connection closed, code: %d, err: %+v", code, cause)
		}

		if t.listener.OnClose != nil {
			t.listener.OnClose(code, cause)
		}
		close(t.done)
	})
}

// closeCodeOf maps a read error to the close code reported to listeners.
func closeCodeOf(err error) CloseCode {
	var closeErr *gws.CloseError
	if errors.As(err, &closeErr) {
		return CloseCode(closeErr.Code)
	}
	return CloseAbnormal
}

package reconnect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime/internal/obs"
	"realtime/internal/protocol"
	"realtime/internal/schedule"
	"realtime/pkg/websocket"
)

type fakeTransport struct {
	mu       sync.Mutex
	listener websocket.Listener
	url      string
	token    string
	opened   bool
	closed   int
	sent     []protocol.Envelope
}

func (f *fakeTransport) Open(ctx context.Context, url string, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
	f.token = token
	return nil
}

func (f *fakeTransport) Send(msgType websocket.MessageType, payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.opened {
		return false
	}
	env, err := protocol.Decode(payload)
	if err != nil {
		return false
	}
	f.sent = append(f.sent, env)
	return true
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	f.closed++
	wasOpen := f.opened
	f.opened = false
	f.mu.Unlock()
	if wasOpen && f.listener.OnClose != nil {
		f.listener.OnClose(websocket.CloseNormal, nil)
	}
}

func (f *fakeTransport) accept() {
	f.mu.Lock()
	f.opened = true
	f.mu.Unlock()
	f.listener.OnOpen()
}

func (f *fakeTransport) drop() {
	f.mu.Lock()
	f.opened = false
	f.mu.Unlock()
	f.listener.OnClose(websocket.CloseAbnormal, errors.New("network down"))
}

func (f *fakeTransport) refuse() {
	f.listener.OnError(errors.New("connection refused"))
}

func (f *fakeTransport) envelopes() []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Envelope(nil), f.sent...)
}

type harness struct {
	clock      *schedule.Manual
	metrics    *obs.Metrics
	ctrl       *Controller
	transports []*fakeTransport
	failures   []int
	states     []State
	signedIn   bool
}

func newHarness(t *testing.T, maxAttempts int) *harness {
	t.Helper()
	h := &harness{
		clock:    schedule.NewManual(time.Unix(0, 0)),
		metrics:  obs.NewMetrics(),
		signedIn: true,
	}
	factory := func(listener websocket.Listener) Transport {
		tr := &fakeTransport{listener: listener}
		h.transports = append(h.transports, tr)
		return tr
	}
	credentials := func() (string, protocol.Identity, bool) {
		return "token-1", protocol.Identity{ID: "7", Username: "ada"}, h.signedIn
	}
	ctrl, err := New(Config{
		URL:         "ws://example.test",
		MaxAttempts: maxAttempts,
		Backoff:     Backoff{Delay: 3 * time.Second, Factor: 1},
		Scheduler:   h.clock,
		Metrics:     h.metrics,
	}, factory, credentials, Hooks{
		OnFailure:     func(attempts int) { h.failures = append(h.failures, attempts) },
		OnStateChange: func(from, to State) { h.states = append(h.states, to) },
	})
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

func (h *harness) last() *fakeTransport {
	return h.transports[len(h.transports)-1]
}

func TestConnectSendsAuthenticateOnOpen(t *testing.T) {
	h := newHarness(t, 5)
	require.NoError(t, h.ctrl.Connect(context.Background()))
	require.Len(t, h.transports, 1)
	assert.Equal(t, StateConnecting, h.ctrl.State())
	assert.Equal(t, "ws://example.test", h.last().url)
	assert.Equal(t, "token-1", h.last().token)

	h.last().accept()

	assert.Equal(t, StateAuthenticating, h.ctrl.State())
	sent := h.last().envelopes()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.TypeAuthenticate, sent[0].Type)
	var identity protocol.Identity
	require.NoError(t, sent[0].Bind(&identity))
	assert.Equal(t, protocol.Identity{ID: "7", Username: "ada"}, identity)

	h.ctrl.MarkJoined()
	assert.Equal(t, StateJoined, h.ctrl.State())
	assert.Equal(t, []State{StateConnecting, StateAuthenticating, StateJoined}, h.states)
}

func TestConnectIsIdempotent(t *testing.T) {
	h := newHarness(t, 5)
	require.NoError(t, h.ctrl.Connect(context.Background()))
	require.NoError(t, h.ctrl.Connect(context.Background()))
	h.last().accept()
	require.NoError(t, h.ctrl.Connect(context.Background()))

	assert.Len(t, h.transports, 1)
}

func TestConnectWithoutSession(t *testing.T) {
	h := newHarness(t, 5)
	h.signedIn = false

	assert.ErrorIs(t, h.ctrl.Connect(context.Background()), ErrNotAuthenticated)
	assert.Empty(t, h.transports)
	assert.Equal(t, StateDisconnected, h.ctrl.State())
}

func TestRetryIsBoundedAndFailsOnce(t *testing.T) {
	h := newHarness(t, 3)
	require.NoError(t, h.ctrl.Connect(context.Background()))

	for attempt := 1; attempt <= 3; attempt++ {
		h.last().refuse()
		assert.Equal(t, StateDisconnected, h.ctrl.State())
		assert.Equal(t, attempt, h.ctrl.Attempts())
		assert.Equal(t, 1, h.clock.Pending())

		h.clock.Advance(3*time.Second - time.Millisecond)
		assert.Len(t, h.transports, attempt)
		h.clock.Advance(time.Millisecond)
		assert.Len(t, h.transports, attempt+1)
		assert.Equal(t, StateConnecting, h.ctrl.State())
	}

	h.last().refuse()

	assert.Equal(t, StateFailed, h.ctrl.State())
	assert.Equal(t, 0, h.clock.Pending())
	assert.Equal(t, []int{3}, h.failures)

	h.clock.Advance(time.Minute)
	assert.Len(t, h.transports, 4)
	assert.Equal(t, []int{3}, h.failures)

	snap := h.metrics.Snapshot()
	assert.EqualValues(t, 3, snap.Reconnects)
	assert.EqualValues(t, 1, snap.Failures)
}

func TestZeroAttemptsFailsImmediately(t *testing.T) {
	h := newHarness(t, -1)
	require.NoError(t, h.ctrl.Connect(context.Background()))
	h.last().accept()
	h.last().drop()

	assert.Equal(t, StateFailed, h.ctrl.State())
	assert.Equal(t, []int{0}, h.failures)
	assert.Equal(t, 0, h.clock.Pending())
}

func TestSuccessfulOpenResetsAttempts(t *testing.T) {
	h := newHarness(t, 3)
	require.NoError(t, h.ctrl.Connect(context.Background()))

	h.last().refuse()
	h.clock.Advance(3 * time.Second)
	h.last().refuse()
	h.clock.Advance(3 * time.Second)
	require.Equal(t, 2, h.ctrl.Attempts())

	h.last().accept()
	assert.Equal(t, 0, h.ctrl.Attempts())

	h.last().drop()
	assert.Equal(t, 1, h.ctrl.Attempts())
	assert.Equal(t, StateDisconnected, h.ctrl.State())
	assert.Empty(t, h.failures)
}

func TestDisconnectCancelsPendingRetry(t *testing.T) {
	h := newHarness(t, 5)
	require.NoError(t, h.ctrl.Connect(context.Background()))
	h.last().accept()
	h.last().drop()
	require.Equal(t, 1, h.clock.Pending())

	h.ctrl.Disconnect()

	assert.Equal(t, 0, h.clock.Pending())
	h.clock.Advance(time.Minute)
	assert.Len(t, h.transports, 1)
	assert.Equal(t, StateDisconnected, h.ctrl.State())
	assert.NotContains(t, h.states[len(h.states)-2:], StateConnecting)
}

func TestDisconnectClosesTransportAndIgnoresItsEvents(t *testing.T) {
	h := newHarness(t, 5)
	require.NoError(t, h.ctrl.Connect(context.Background()))
	old := h.last()
	old.accept()

	h.ctrl.Disconnect()

	assert.Equal(t, 1, old.closed)
	assert.Equal(t, StateDisconnected, h.ctrl.State())
	assert.Equal(t, 0, h.clock.Pending())

	old.listener.OnClose(websocket.CloseAbnormal, errors.New("late"))
	old.listener.OnMessage([]byte(`{"type":"x"}`))
	assert.Equal(t, 0, h.clock.Pending())
	assert.Equal(t, StateDisconnected, h.ctrl.State())
	assert.False(t, h.ctrl.Send(protocol.TypeTyping, nil))

	h.ctrl.Disconnect()
	assert.Equal(t, 1, old.closed)
}

func TestConnectAfterFailureResetsBudget(t *testing.T) {
	h := newHarness(t, 1)
	require.NoError(t, h.ctrl.Connect(context.Background()))
	h.last().refuse()
	h.clock.Advance(3 * time.Second)
	h.last().refuse()
	require.Equal(t, StateFailed, h.ctrl.State())

	require.NoError(t, h.ctrl.Connect(context.Background()))
	assert.Equal(t, StateConnecting, h.ctrl.State())
	assert.Equal(t, 0, h.ctrl.Attempts())
	h.last().refuse()
	assert.Equal(t, 1, h.ctrl.Attempts())
	assert.Equal(t, StateDisconnected, h.ctrl.State())
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	h := newHarness(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.ctrl.Connect(ctx))
	h.last().accept()

	cancel()
	h.last().drop()

	assert.Equal(t, StateDisconnected, h.ctrl.State())
	assert.Equal(t, 0, h.clock.Pending())
}

func TestSendRequiresOpenConnection(t *testing.T) {
	h := newHarness(t, 5)
	assert.False(t, h.ctrl.Send(protocol.TypeJoinRoom, protocol.RoomData{RoomName: "global"}))

	require.NoError(t, h.ctrl.Connect(context.Background()))
	assert.False(t, h.ctrl.Send(protocol.TypeJoinRoom, protocol.RoomData{RoomName: "global"}))

	h.last().accept()
	assert.True(t, h.ctrl.Send(protocol.TypeJoinRoom, protocol.RoomData{RoomName: "global"}))

	snap := h.metrics.Snapshot()
	assert.EqualValues(t, 2, snap.SendsOK)
	assert.EqualValues(t, 2, snap.SendsDropped)
}

func TestMessagesForwardedFromCurrentConnection(t *testing.T) {
	var got []string
	clock := schedule.NewManual(time.Unix(0, 0))
	var transports []*fakeTransport
	ctrl, err := New(Config{URL: "ws://example.test", Scheduler: clock},
		func(listener websocket.Listener) Transport {
			tr := &fakeTransport{listener: listener}
			transports = append(transports, tr)
			return tr
		},
		func() (string, protocol.Identity, bool) { return "t", protocol.Identity{ID: "1"}, true },
		Hooks{OnMessage: func(raw []byte) { got = append(got, string(raw)) }},
	)
	require.NoError(t, err)
	require.NoError(t, ctrl.Connect(context.Background()))
	transports[0].accept()
	transports[0].listener.OnMessage([]byte("a"))
	transports[0].drop()
	transports[0].listener.OnMessage([]byte("stale"))
	clock.Advance(DefaultDelay)
	transports[1].accept()
	transports[1].listener.OnMessage([]byte("b"))

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{URL: "ws://x"}, nil, nil, Hooks{})
	assert.ErrorIs(t, err, ErrNilFactory)

	_, err = New(Config{}, func(websocket.Listener) Transport { return &fakeTransport{} }, nil, Hooks{})
	assert.ErrorIs(t, err, ErrEmptyURL)
}

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	opened   chan struct{}
	errs     chan error
	messages chan []byte
	closes   chan CloseCode
	closeCnt atomic.Int32
}

func newRecorder() *recorder {
	return &recorder{
		opened:   make(chan struct{}, 1),
		errs:     make(chan error, 1),
		messages: make(chan []byte, 16),
		closes:   make(chan CloseCode, 4),
	}
}

func (r *recorder) listener() Listener {
	return Listener{
		OnOpen:    func() { r.opened <- struct{}{} },
		OnError:   func(err error) { r.errs <- err },
		OnMessage: func(payload []byte) { r.messages <- payload },
		OnClose: func(code CloseCode, _ error) {
			r.closeCnt.Add(1)
			r.closes <- code
		},
	}
}

func newServer(t *testing.T, handle func(conn *gws.Conn, r *http.Request)) (*httptest.Server, string) {
	t.Helper()
	upgrader := gws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for transport event")
	}
	var zero T
	return zero
}

func TestTransportOpenSendReceiveClose(t *testing.T) {
	authHeader := make(chan string, 1)
	received := make(chan string, 1)
	_, url := newServer(t, func(conn *gws.Conn, r *http.Request) {
		authHeader <- r.Header.Get("Authorization")
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(payload)
		_ = conn.WriteMessage(gws.TextMessage, []byte(`{"type":"connected","data":{}}`))
		_ = conn.WriteMessage(gws.PingMessage, nil)
		_ = conn.WriteControl(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_, _, _ = conn.ReadMessage()
	})

	rec := newRecorder()
	tr := New(NewDialer(), rec.listener())
	require.NoError(t, tr.Open(context.Background(), url, "token-1"))

	waitFor(t, rec.opened)
	assert.Equal(t, StateOpen, tr.State())
	assert.Equal(t, "Bearer token-1", waitFor(t, authHeader))

	require.True(t, tr.Send(MessageText, []byte(`{"type":"authenticate"}`)))
	assert.Equal(t, `{"type":"authenticate"}`, waitFor(t, received))

	assert.JSONEq(t, `{"type":"connected","data":{}}`, string(waitFor(t, rec.messages)))
	assert.Equal(t, CloseNormal, waitFor(t, rec.closes))

	<-tr.Done()
	assert.Equal(t, StateClosed, tr.State())
	assert.False(t, tr.Send(MessageText, []byte("late")))

	tr.Close()
	assert.Equal(t, int32(1), rec.closeCnt.Load())
}

func TestTransportDialFailureEmitsOnlyError(t *testing.T) {
	rec := newRecorder()
	dialErr := ErrEmptyURL
	tr := New(DialerFunc(func(context.Context, string, string) (Conn, error) {
		return nil, dialErr
	}), rec.listener())

	require.NoError(t, tr.Open(context.Background(), "ws://unused", ""))
	assert.ErrorIs(t, waitFor(t, rec.errs), dialErr)
	<-tr.Done()

	assert.Equal(t, StateClosed, tr.State())
	assert.Empty(t, rec.opened)
	assert.Equal(t, int32(0), rec.closeCnt.Load())
	assert.ErrorIs(t, tr.Open(context.Background(), "ws://unused", ""), ErrAlreadyOpened)
}

func TestTransportLocalCloseIsIdempotent(t *testing.T) {
	_, url := newServer(t, func(conn *gws.Conn, _ *http.Request) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	rec := newRecorder()
	tr := New(NewDialer(), rec.listener())
	require.NoError(t, tr.Open(context.Background(), url, ""))
	waitFor(t, rec.opened)

	tr.Close()
	tr.Close()
	assert.Equal(t, CloseNormal, waitFor(t, rec.closes))
	<-tr.Done()
	tr.Close()

	assert.Equal(t, int32(1), rec.closeCnt.Load())
	assert.False(t, tr.Send(MessageText, []byte("x")))
}

func TestTransportSendBeforeOpenIsDropped(t *testing.T) {
	tr := New(NewDialer(), Listener{})
	assert.False(t, tr.Send(MessageText, []byte("x")))

	tr.Close()
	<-tr.Done()
	assert.Equal(t, StateClosed, tr.State())
}

func TestTransportCloseWhileConnecting(t *testing.T) {
	release := make(chan struct{})
	rec := newRecorder()
	tr := New(DialerFunc(func(ctx context.Context, _ string, _ string) (Conn, error) {
		close(release)
		<-ctx.Done()
		return nil, ctx.Err()
	}), rec.listener())

	require.NoError(t, tr.Open(context.Background(), "ws://unused", ""))
	<-release
	tr.Close()

	assert.Error(t, waitFor(t, rec.errs))
	<-tr.Done()
	assert.Empty(t, rec.opened)
	assert.Equal(t, int32(0), rec.closeCnt.Load())
}

func TestWriterDropsWhenFull(t *testing.T) {
	w := newWriter(DefaultBufferPool(), 1, OverflowDropNewest)
	assert.ErrorIs(t, w.Send(MessageText, []byte("a")), ErrNotConnected)

	w.SetConnected(true)
	require.NoError(t, w.Send(MessageText, []byte("a")))
	assert.ErrorIs(t, w.Send(MessageText, []byte("b")), ErrQueueFull)

	frame := <-w.Frames()
	assert.Equal(t, MessageText, frame.kind)
	assert.Equal(t, "a", string(frame.buf))
	w.release(frame)
}

func TestWriterDropOldest(t *testing.T) {
	w := newWriter(DefaultBufferPool(), 1, OverflowDropOldest)
	w.SetConnected(true)
	require.NoError(t, w.Send(MessageText, []byte("a")))
	require.NoError(t, w.Send(MessageText, []byte("b")))

	frame := <-w.Frames()
	assert.Equal(t, "b", string(frame.buf))
	w.release(frame)
	assert.Equal(t, 0, w.Drain())
}

func TestWriterDrainDropsQueuedFrames(t *testing.T) {
	w := newWriter(nil, 4, OverflowDropNewest)
	w.SetConnected(true)
	require.NoError(t, w.Send(MessageText, []byte("a")))
	require.NoError(t, w.Send(MessageText, []byte("b")))

	w.SetConnected(false)
	assert.Equal(t, 2, w.Drain())
	assert.ErrorIs(t, w.Send(MessageText, []byte("c")), ErrNotConnected)
	assert.Equal(t, 0, w.Drain())
}

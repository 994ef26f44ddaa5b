package websocket

import (
	"sync/atomic"
)

// outbound is one queued write. buf is owned by the writer's pool until the
// frame is released.
type outbound struct {
	kind MessageType
	buf  []byte
}

// writer is a bounded outbound queue between Send and the write loop. Send
// never blocks; frames left when the connection ends are dropped.
type writer struct {
	buffers *BufferPool
	frames  chan outbound
	policy  OverflowPolicy
	open    atomic.Bool
}

func newWriter(buffers *BufferPool, capacity int, policy OverflowPolicy) *writer {
	if capacity <= 0 {
		capacity = 1
	}
	return &writer{
		buffers: buffers,
		frames:  make(chan outbound, capacity),
		policy:  policy,
	}
}

// SetConnected gates Send.
func (w *writer) SetConnected(connected bool) {
	w.open.Store(connected)
}

// Send copies payload and queues it for the write loop.
func (w *writer) Send(kind MessageType, payload []byte) error {
	if !w.open.Load() {
		return ErrNotConnected
	}
	f := outbound{kind: kind, buf: w.copyOf(payload)}
	if w.push(f) {
		return nil
	}
	w.release(f)
	return ErrQueueFull
}

// Frames is drained by the write loop; each received frame must be released.
func (w *writer) Frames() <-chan outbound {
	return w.frames
}

func (w *writer) release(f outbound) {
	if w.buffers != nil && f.buf != nil {
		w.buffers.Put(f.buf)
	}
}

// Drain discards queued frames and returns how many were dropped.
func (w *writer) Drain() int {
	n := 0
	for {
		select {
		case f := <-w.frames:
			w.release(f)
			n++
		default:
			return n
		}
	}
}

func (w *writer) copyOf(payload []byte) []byte {
	var buf []byte
	if w.buffers != nil {
		buf = w.buffers.Get(len(payload))
	} else {
		buf = make([]byte, len(payload))
	}
	copy(buf, payload)
	return buf
}

func (w *writer) push(f outbound) bool {
	select {
	case w.frames <- f:
		return true
	default:
	}
	if w.policy != OverflowDropOldest {
		return false
	}
	// Make room by evicting the oldest frame; a racing consumer may free the
	// slot first, in which case the retry succeeds without an eviction.
	for {
		select {
		case old := <-w.frames:
			w.release(old)
		default:
		}
		select {
		case w.frames <- f:
			return true
		default:
		}
	}
}

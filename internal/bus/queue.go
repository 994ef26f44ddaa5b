package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yanun0323/logs"
)

var (
	ErrQueueFull   = errors.New("notice queue full")
	ErrQueueClosed = errors.New("notice queue closed")
)

// Level classifies a user-visible notice.
type Level uint8

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice is the unit passed through the queue.
type Notice struct {
	Level   Level
	Message string
	At      time.Time
}

// Queue is a bounded, non-blocking notice queue. It implements the notice
// sink used by the realtime client: publishing never blocks the caller and
// overflow drops the notice.
type Queue struct {
	mu     sync.RWMutex
	ch     chan Notice
	closed bool
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Notice, capacity)}
}

// TryPublish enqueues a notice without blocking.
func (q *Queue) TryPublish(n Notice) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) Success(message string) { q.publish(LevelSuccess, message) }
func (q *Queue) Error(message string)   { q.publish(LevelError, message) }
func (q *Queue) Info(message string)    { q.publish(LevelInfo, message) }

// Close stops the queue from accepting new notices.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Run consumes notices until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(Notice)) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q.ch:
			if !ok {
				return
			}
			handler(n)
		}
	}
}

func (q *Queue) publish(level Level, message string) {
	if err := q.TryPublish(Notice{Level: level, Message: message, At: time.Now()}); err != nil {
		logs.Warnf("bus: drop %s notice %q, err: %+v", level, message, err)
	}
}

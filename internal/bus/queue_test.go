package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDeliversInOrder(t *testing.T) {
	q := NewQueue(4)
	q.Info("one")
	q.Error("two")
	q.Success("three")
	q.Close()

	var got []Notice
	q.Run(context.Background(), func(n Notice) { got = append(got, n) })

	require.Len(t, got, 3)
	assert.Equal(t, "one", got[0].Message)
	assert.Equal(t, LevelInfo, got[0].Level)
	assert.Equal(t, LevelError, got[1].Level)
	assert.Equal(t, LevelSuccess, got[2].Level)
	assert.False(t, got[0].At.IsZero())
}

func TestQueueFullAndClosed(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.TryPublish(Notice{Message: "a"}))
	assert.ErrorIs(t, q.TryPublish(Notice{Message: "b"}), ErrQueueFull)
	assert.NotPanics(t, func() { q.Info("dropped") })

	q.Close()
	q.Close()
	assert.ErrorIs(t, q.TryPublish(Notice{Message: "c"}), ErrQueueClosed)
	assert.NotPanics(t, func() { q.Error("after close") })
}

func TestQueueRunStopsOnContext(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		q.Run(ctx, func(Notice) {})
		close(done)
	}()
	<-done
}

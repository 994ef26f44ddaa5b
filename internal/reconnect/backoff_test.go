package reconnect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffFixedDelay(t *testing.T) {
	b := Backoff{Delay: 2 * time.Second, Factor: 1}
	policy := b.Policy()
	for i := 0; i < 5; i++ {
		assert.Equal(t, 2*time.Second, b.next(policy))
	}
}

func TestBackoffExponentialIsCapped(t *testing.T) {
	b := Backoff{Delay: time.Second, Max: 5 * time.Second, Factor: 2}
	policy := b.Policy()

	var got []time.Duration
	for i := 0; i < 5; i++ {
		got = append(got, b.next(policy))
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}, got)

	policy.Reset()
	assert.Equal(t, time.Second, b.next(policy))
}

func TestBackoffDefaults(t *testing.T) {
	b := DefaultBackoff()
	assert.Equal(t, DefaultDelay, b.next(b.Policy()))
	assert.Equal(t, DefaultDelay, Backoff{}.next(Backoff{}.Policy()))
}

func TestBackoffJitterStaysInRange(t *testing.T) {
	b := Backoff{Delay: time.Second, Factor: 1, Jitter: 0.5}
	policy := b.Policy()
	for i := 0; i < 20; i++ {
		wait := b.next(policy)
		assert.GreaterOrEqual(t, wait, 500*time.Millisecond)
		assert.LessOrEqual(t, wait, 1500*time.Millisecond)
	}
}

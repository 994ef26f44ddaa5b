package reconnect

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultDelay       = 3 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMaxAttempts = 5
)

// Backoff configures the wait between reconnection attempts.
type Backoff struct {
	// Delay is the wait before each retry, or before the first one when Factor > 1.
	Delay time.Duration
	// Max caps the delay when Factor > 1.
	Max time.Duration
	// Factor multiplies the delay for each retry. Values <= 1 keep the delay fixed.
	Factor float64
	// Jitter adds randomization as a fraction of the delay (0-1).
	Jitter float64
}

// DefaultBackoff retries at a fixed delay.
func DefaultBackoff() Backoff {
	return Backoff{
		Delay:  DefaultDelay,
		Max:    DefaultMaxDelay,
		Factor: 1,
	}
}

// Policy builds a fresh retry policy from the configuration.
func (b Backoff) Policy() backoff.BackOff {
	delay := b.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	jitter := b.Jitter
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	if b.Factor <= 1 && jitter == 0 {
		return backoff.NewConstantBackOff(delay)
	}

	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	max := b.Max
	if max < delay {
		max = delay
		if factor > 1 {
			max = DefaultMaxDelay
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = delay
	policy.Multiplier = factor
	policy.MaxInterval = max
	policy.RandomizationFactor = jitter
	policy.Reset()
	return policy
}

// next returns the next wait, falling back to the configured delay when the
// policy gives up.
func (b Backoff) next(policy backoff.BackOff) time.Duration {
	wait := policy.NextBackOff()
	if wait == backoff.Stop || wait < 0 {
		if b.Delay > 0 {
			return b.Delay
		}
		return DefaultDelay
	}
	return wait
}

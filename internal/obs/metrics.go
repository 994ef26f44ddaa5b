package obs

import (
	"sync/atomic"
	"time"
)

// Metrics collects lightweight counters and latency stats for a realtime session.
// All methods are safe on a nil receiver.
type Metrics struct {
	framesIn        uint64
	framesMalformed uint64
	framesUnhandled uint64
	handlerFailures uint64
	sendsOK         uint64
	sendsDropped    uint64
	reconnects      uint64
	failures        uint64

	dispatchLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	FramesIn        uint64
	FramesMalformed uint64
	FramesUnhandled uint64
	HandlerFailures uint64
	SendsOK         uint64
	SendsDropped    uint64
	Reconnects      uint64
	Failures        uint64
	DispatchLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncFrameIn records an inbound frame.
func (m *Metrics) IncFrameIn() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.framesIn, 1)
}

// IncMalformed records a frame that could not be parsed.
func (m *Metrics) IncMalformed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.framesMalformed, 1)
}

// IncUnhandled records a frame whose type had no handlers.
func (m *Metrics) IncUnhandled() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.framesUnhandled, 1)
}

// IncHandlerFailure records a handler that returned an error or panicked.
func (m *Metrics) IncHandlerFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.handlerFailures, 1)
}

// ObserveSend records the outcome of an outbound send.
func (m *Metrics) ObserveSend(ok bool) {
	if m == nil {
		return
	}
	if ok {
		atomic.AddUint64(&m.sendsOK, 1)
		return
	}
	atomic.AddUint64(&m.sendsDropped, 1)
}

// IncReconnect records a scheduled reconnection attempt.
func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.reconnects, 1)
}

// IncFailure records a permanent connection failure.
func (m *Metrics) IncFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.failures, 1)
}

// ObserveDispatch measures the time spent running handlers for one frame.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		FramesIn:        atomic.LoadUint64(&m.framesIn),
		FramesMalformed: atomic.LoadUint64(&m.framesMalformed),
		FramesUnhandled: atomic.LoadUint64(&m.framesUnhandled),
		HandlerFailures: atomic.LoadUint64(&m.handlerFailures),
		SendsOK:         atomic.LoadUint64(&m.sendsOK),
		SendsDropped:    atomic.LoadUint64(&m.sendsDropped),
		Reconnects:      atomic.LoadUint64(&m.reconnects),
		Failures:        atomic.LoadUint64(&m.failures),
		DispatchLatency: m.dispatchLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}

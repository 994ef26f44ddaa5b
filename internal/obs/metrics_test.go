package obs

import (
	"testing"
	"time"
)

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.IncFrameIn()
	m.ObserveSend(false)
	m.ObserveDispatch(time.Millisecond)
	if snap := m.Snapshot(); snap != (Snapshot{}) {
		t.Fatalf("nil snapshot mismatch: %+v", snap)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.IncFrameIn()
	m.IncFrameIn()
	m.IncMalformed()
	m.IncHandlerFailure()
	m.ObserveSend(true)
	m.ObserveSend(false)
	m.IncReconnect()
	m.IncFailure()
	m.ObserveDispatch(2 * time.Millisecond)
	m.ObserveDispatch(4 * time.Millisecond)

	snap := m.Snapshot()
	if snap.FramesIn != 2 || snap.FramesMalformed != 1 || snap.HandlerFailures != 1 {
		t.Fatalf("frame counters mismatch: %+v", snap)
	}
	if snap.SendsOK != 1 || snap.SendsDropped != 1 {
		t.Fatalf("send counters mismatch: %+v", snap)
	}
	if snap.Reconnects != 1 || snap.Failures != 1 {
		t.Fatalf("connection counters mismatch: %+v", snap)
	}
	lat := snap.DispatchLatency
	if lat.Count != 2 || lat.Min != 2*time.Millisecond || lat.Max != 4*time.Millisecond || lat.Avg != 3*time.Millisecond {
		t.Fatalf("latency mismatch: %+v", lat)
	}
}

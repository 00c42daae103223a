package k6

import (
	"sync/atomic"
)

// SessionMetrics contains atomic metrics for a protocol session.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type SessionMetrics struct {
	// FrameSendCount indicates the number of frames written to the transport.
	FrameSendCount atomic.Uint64
	// FrameRecvCount indicates the number of non-empty read windows.
	FrameRecvCount atomic.Uint64

	// ChunkSendCount indicates the number of DATA chunks acknowledged.
	ChunkSendCount atomic.Uint64
	// ChunkRetryCount indicates the total number of DATA chunk resends.
	ChunkRetryCount atomic.Uint64
	// BytesSent indicates the total frame bytes written, headers included.
	BytesSent atomic.Uint64

	// AckCount indicates the number of ACK bytes observed.
	AckCount atomic.Uint64
	// HeartbeatCount indicates the number of keep-alive frames observed.
	HeartbeatCount atomic.Uint64
	// TimeoutCount indicates the number of read windows that expired empty.
	TimeoutCount atomic.Uint64

	// LastStatusPct indicates the most recent progress percentage, or -1.
	LastStatusPct atomic.Int32
}

func newSessionMetrics() *SessionMetrics {
	m := &SessionMetrics{}
	m.LastStatusPct.Store(-1)

	return m
}

func (m *SessionMetrics) incFrameSendCount(n uint64) {
	m.FrameSendCount.Add(1)
	m.BytesSent.Add(n)
}

func (m *SessionMetrics) incChunkSendCount() {
	m.ChunkSendCount.Add(1)
}

func (m *SessionMetrics) incChunkRetryCount() {
	m.ChunkRetryCount.Add(1)
}

func (m *SessionMetrics) incTimeoutCount() {
	m.TimeoutCount.Add(1)
}

func (m *SessionMetrics) observeResponse(resp Response) {
	if len(resp.Raw) > 0 {
		m.FrameRecvCount.Add(1)
	}
	if resp.ACKs > 0 {
		m.AckCount.Add(uint64(resp.ACKs)) //nolint:gosec // never negative
	}
	if resp.Heartbeats > 0 {
		m.HeartbeatCount.Add(uint64(resp.Heartbeats)) //nolint:gosec // never negative
	}
	if resp.StatusPct >= 0 {
		m.LastStatusPct.Store(int32(resp.StatusPct)) //nolint:gosec // bounded [0,100]
	}
}

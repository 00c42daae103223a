package k6

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlaser/go-k6/logger"
	"github.com/openlaser/go-k6/transport"
)

func TestBurnPayload_ChunkSplit(t *testing.T) {
	s, mock := newConnectedSession(t)

	// One 3000-byte line splits into 1900 + 1100.
	chunks, err := s.burnPayload(context.Background(), [][]byte{make([]byte, 3000)})
	require.NoError(t, err)
	assert.Equal(t, 2, chunks)

	writes := mock.Writes()
	require.Len(t, writes, 2)
	assert.Len(t, writes[0], 1904)
	assert.Len(t, writes[1], 1104)
	assert.Equal(t, byte(0x22), writes[0][0])
	assert.Equal(t, byte(0x22), writes[1][0])

	assert.Equal(t, uint64(2), s.Metrics().ChunkSendCount.Load())
	assert.Zero(t, s.Metrics().ChunkRetryCount.Load())
}

func TestBurnPayload_MultiLine(t *testing.T) {
	s, _ := newConnectedSession(t)

	lines := [][]byte{make([]byte, 200), make([]byte, 200), make([]byte, 200)}
	chunks, err := s.burnPayload(context.Background(), lines)
	require.NoError(t, err)
	assert.Equal(t, 3, chunks)
}

func TestSendChunk_RetryThenSuccess(t *testing.T) {
	s, mock := newTestSession(t,
		WithChunkRetryLimit(3),
		WithChunkTimeout(100*time.Millisecond),
		WithRetryBackoff(time.Millisecond),
	)

	// First attempt times out; the ACK shows up during the second.
	go func() {
		time.Sleep(130 * time.Millisecond)
		mock.QueueResponse([]byte{0x09})
	}()

	chunks, err := s.burnPayload(context.Background(), [][]byte{{0xFF}})
	require.NoError(t, err)
	assert.Equal(t, 1, chunks)
	assert.Equal(t, uint64(1), s.Metrics().ChunkRetryCount.Load())
}

func TestSendChunk_RetriesExhausted(t *testing.T) {
	s, _ := newTestSession(t,
		WithChunkRetryLimit(2),
		WithChunkTimeout(20*time.Millisecond),
		WithRetryBackoff(time.Millisecond),
	)

	chunks, err := s.burnPayload(context.Background(), [][]byte{{0xFF}})
	require.Error(t, err)
	assert.Zero(t, chunks)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Contains(t, err.Error(), "line 0, offset 0")
	assert.Equal(t, uint64(1), s.Metrics().ChunkRetryCount.Load())
}

// stampedTransport records the wall-clock time of every write so tests can
// measure the spacing between retry attempts.
type stampedTransport struct {
	*transport.MockTransport

	mu     sync.Mutex
	stamps []time.Time
}

func (t *stampedTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	t.stamps = append(t.stamps, time.Now())
	t.mu.Unlock()

	return t.MockTransport.Write(p)
}

func TestSendChunk_BackoffGrowsPerAttempt(t *testing.T) {
	cfg, err := NewSessionConfig(
		WithLogger(logger.NewSlog(logger.ErrorLevel, false)),
		WithChunkRetryLimit(3),
		WithChunkTimeout(20*time.Millisecond),
		WithRetryBackoff(50*time.Millisecond),
	)
	require.NoError(t, err)

	tr := &stampedTransport{MockTransport: transport.NewMockTransport()}
	s := NewSession(tr, cfg)

	// A silent device forces all three attempts.
	_, err = s.burnPayload(context.Background(), [][]byte{{0xFF}})
	require.Error(t, err)

	tr.mu.Lock()
	stamps := append([]time.Time(nil), tr.stamps...)
	tr.mu.Unlock()
	require.Len(t, stamps, 3)

	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])
	assert.Greater(t, second, first, "delay before the third attempt must exceed the one before the second")
	assert.GreaterOrEqual(t, second-first, 25*time.Millisecond,
		"doubling the 50ms base must widen the gap by at least half the base")
}

func TestSendChunk_NoACKIsDeviceError(t *testing.T) {
	s, mock := newTestSession(t,
		WithChunkRetryLimit(2),
		WithChunkTimeout(20*time.Millisecond),
		WithRetryBackoff(time.Millisecond),
	)

	// Both attempts read a lone heartbeat instead of an ACK.
	mock.QueueResponse([]byte{0xFF, 0xFF, 0xFF, 0xFE})
	go func() {
		time.Sleep(25 * time.Millisecond)
		mock.QueueResponse([]byte{0xFF, 0xFF, 0xFF, 0xFE})
	}()

	_, err := s.burnPayload(context.Background(), [][]byte{{0xFF}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDevice)
}

func TestBurnPayload_Cancelled(t *testing.T) {
	s, _ := newConnectedSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chunks, err := s.burnPayload(ctx, [][]byte{{0xFF}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, chunks)
}

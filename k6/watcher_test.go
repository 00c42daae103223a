package k6

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openlaser/go-k6/logger"
)

func TestWaitForCompletion_Complete(t *testing.T) {
	s, mock := newTestSession(t, WithPollInterval(time.Millisecond))

	mock.QueueResponse([]byte{
		0xFF, 0xFF, 0x00, 0x1E, // 30%
		0xFF, 0xFF, 0x00, 0x64, // 100%
	})

	res, err := s.waitForCompletion(context.Background(), time.Second)
	require.NoError(t, err)
	assert.True(t, res.complete)
	assert.Equal(t, 100, res.lastPct)
	assert.Equal(t, int32(100), s.Metrics().LastStatusPct.Load())
}

func TestWaitForCompletion_IdleTimeout(t *testing.T) {
	s, mock := newTestSession(t,
		WithPollInterval(time.Millisecond),
		WithIdleTimeout(50*time.Millisecond),
	)

	mock.QueueResponse([]byte{0xFF, 0xFF, 0x00, 0x32}) // 50%

	res, err := s.waitForCompletion(context.Background(), time.Second)
	require.NoError(t, err)
	assert.False(t, res.complete)
	assert.Equal(t, 50, res.lastPct)
}

func TestWaitForCompletion_IdleWithNoStatus(t *testing.T) {
	s, _ := newTestSession(t,
		WithPollInterval(time.Millisecond),
		WithIdleTimeout(30*time.Millisecond),
	)

	res, err := s.waitForCompletion(context.Background(), time.Second)
	require.NoError(t, err)
	assert.False(t, res.complete)
	assert.Equal(t, -1, res.lastPct)
}

func TestWaitForCompletion_IdleLogsWarning(t *testing.T) {
	log := logger.NewMockLogger()
	log.On("Debug", mock.Anything, mock.Anything).Maybe()
	log.On("Warn", "device went idle during burn wait", mock.Anything).Once()

	s, _ := newTestSession(t,
		WithPollInterval(time.Millisecond),
		WithIdleTimeout(20*time.Millisecond),
		WithLogger(log),
	)

	_, err := s.waitForCompletion(context.Background(), time.Second)
	require.NoError(t, err)
	log.AssertExpectations(t)
}

func TestWaitForCompletion_MaxWaitExceeded(t *testing.T) {
	s, _ := newTestSession(t,
		WithPollInterval(time.Millisecond),
		WithIdleTimeout(time.Hour),
	)

	_, err := s.waitForCompletion(context.Background(), 50*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWaitForCompletion_Cancelled(t *testing.T) {
	s, _ := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.waitForCompletion(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForCompletion_HeartbeatsKeepItAlive(t *testing.T) {
	s, mock := newTestSession(t,
		WithPollInterval(time.Millisecond),
		WithIdleTimeout(80*time.Millisecond),
	)

	// Heartbeats arrive past the first idle window, then completion.
	go func() {
		time.Sleep(50 * time.Millisecond)
		mock.QueueResponse([]byte{0xFF, 0xFF, 0xFF, 0xFE})
		time.Sleep(50 * time.Millisecond)
		mock.QueueResponse([]byte{0xFF, 0xFF, 0x00, 0x64})
	}()

	res, err := s.waitForCompletion(context.Background(), time.Second)
	require.NoError(t, err)
	assert.True(t, res.complete)
}

func TestBurnVerdict(t *testing.T) {
	tests := []struct {
		name    string
		wait    waitResult
		outcome BurnOutcome
		ok      bool
		message string
	}{
		{
			name:    "complete",
			wait:    waitResult{complete: true, lastPct: 100, elapsed: 2 * time.Second},
			outcome: OutcomeComplete,
			ok:      true,
			message: "Burn complete (3 chunks, 2.0s)",
		},
		{
			name:    "idle at high percentage is success",
			wait:    waitResult{lastPct: 85},
			outcome: OutcomeIdleSuccess,
			ok:      true,
			message: "Burn complete (idle timeout at 85%, 3 chunks)",
		},
		{
			name:    "idle at exactly 50 is success",
			wait:    waitResult{lastPct: 50},
			outcome: OutcomeIdleSuccess,
			ok:      true,
			message: "Burn complete (idle timeout at 50%, 3 chunks)",
		},
		{
			name:    "idle at low percentage is failure",
			wait:    waitResult{lastPct: 30},
			outcome: OutcomeFailed,
			ok:      false,
			message: "Burn incomplete: idle timeout (last 30%)",
		},
		{
			name:    "idle with no status at all is failure",
			wait:    waitResult{lastPct: -1},
			outcome: OutcomeFailed,
			ok:      false,
			message: "Burn incomplete: idle timeout (last -1%)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := burnVerdict(tt.wait, 3)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.ok, res.OK)
			assert.Equal(t, 3, res.Chunks)
			assert.Equal(t, tt.message, res.Message)
		})
	}
}

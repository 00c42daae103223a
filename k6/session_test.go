package k6

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlaser/go-k6/logger"
	"github.com/openlaser/go-k6/transport"
)

func newTestSession(t *testing.T, opts ...SessionOption) (*Session, *transport.MockTransport) {
	t.Helper()

	opts = append([]SessionOption{WithLogger(logger.NewSlog(logger.ErrorLevel, false))}, opts...)
	cfg, err := NewSessionConfig(opts...)
	require.NoError(t, err)

	mock := transport.NewMockTransport()

	return NewSession(mock, cfg), mock
}

// newConnectedSession returns a session that has completed the handshake
// against an auto-responding mock, with the handshake frames cleared from
// the write log.
func newConnectedSession(t *testing.T, opts ...SessionOption) (*Session, *transport.MockTransport) {
	t.Helper()

	s, mock := newTestSession(t, opts...)
	mock.EnableAutoRespond([3]byte{4, 1, 6})

	version, err := s.Connect(context.Background())
	require.NoError(t, err)
	require.Equal(t, "4.1.6", version)
	require.NoError(t, mock.ResetOutputBuffer())

	return s, mock
}

func TestSession_Connect(t *testing.T) {
	s, mock := newTestSession(t)
	mock.EnableAutoRespond([3]byte{4, 1, 6})

	version, err := s.Connect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "4.1.6", version)
	assert.Equal(t, "4.1.6", s.Version())
	assert.Equal(t, IdleState, s.State())

	// STOP, VERSION, CONNECT x2, HOME.
	assert.Equal(t, []byte{0x16, 0xFF, 0x0A, 0x0A, 0x17}, mock.WriteOpcodes())
}

func TestSession_Connect_SilentDevice(t *testing.T) {
	s, _ := newTestSession(t)

	_, err := s.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, DisconnectedState, s.State())
	assert.Empty(t, s.Version())
}

func TestSession_Connect_NoACK(t *testing.T) {
	s, mock := newTestSession(t)

	// Version reply arrives, but CONNECT #1 only gets a heartbeat.
	mock.QueueResponse([]byte{4, 1, 6})
	mock.QueueResponse([]byte{0xFF, 0xFF, 0xFF, 0xFE})

	_, err := s.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDevice)
	assert.Equal(t, DisconnectedState, s.State())
}

func TestSession_Connect_Cancelled(t *testing.T) {
	s, mock := newTestSession(t)
	mock.EnableAutoRespond([3]byte{4, 1, 6})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Connect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, mock.WriteOpcodes())
}

func TestSession_RequiresConnection(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Home(ctx), ErrNotConnected)
	assert.ErrorIs(t, s.Crosshair(ctx, true), ErrNotConnected)
	assert.ErrorIs(t, s.Jog(ctx, 100, 100), ErrNotConnected)
	assert.ErrorIs(t, s.DrawBounds(ctx, 100, 100, 0, 0), ErrNotConnected)

	_, err := s.Engrave(ctx, &BurnJob{Width: 8, Height: 1, Power: 1, Depth: 1, Lines: [][]byte{{0xFF}}})
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = s.Mark(ctx, 100, 100, 0, 0)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSession_Home(t *testing.T) {
	s, mock := newConnectedSession(t)

	require.NoError(t, s.Home(context.Background()))
	assert.Equal(t, []byte{0x21, 0x17}, mock.WriteOpcodes())
}

func TestSession_Stop(t *testing.T) {
	s, mock := newTestSession(t)

	// Stop works without a handshake: the stop byte goes out blind, then a
	// CONNECT resets the device state machine.
	mock.QueueResponse([]byte{0x09})
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []byte{0x16, 0x0A}, mock.WriteOpcodes())
}

func TestSession_Crosshair(t *testing.T) {
	s, mock := newConnectedSession(t)
	ctx := context.Background()

	require.NoError(t, s.Crosshair(ctx, true))
	require.NoError(t, s.Crosshair(ctx, false))
	assert.Equal(t, []byte{0x06, 0x07}, mock.WriteOpcodes())
}

func TestSession_Jog(t *testing.T) {
	s, mock := newConnectedSession(t)

	require.NoError(t, s.Jog(context.Background(), 300, 400))

	writes := mock.Writes()
	require.Len(t, writes, 1)
	// 1x1 bounds rectangle at the target.
	assert.Equal(t, []byte{0x20, 0x00, 0x0B, 0x00, 0x01, 0x00, 0x01, 0x01, 0x2C, 0x01, 0x90}, writes[0])
}

func TestSession_Jog_OutOfRange(t *testing.T) {
	s, _ := newConnectedSession(t)

	err := s.Jog(context.Background(), WorkAreaWidth+1, 0)
	assert.ErrorIs(t, err, ErrOutOfWorkArea)

	err = s.Jog(context.Background(), 0, WorkAreaHeight+1)
	assert.ErrorIs(t, err, ErrOutOfWorkArea)
}

func TestSession_DrawBounds(t *testing.T) {
	s, mock := newConnectedSession(t)

	require.NoError(t, s.DrawBounds(context.Background(), 400, 300, 0, 0))
	assert.Equal(t, []byte{0x20}, mock.WriteOpcodes())

	err := s.DrawBounds(context.Background(), WorkAreaWidth+1, 10, 0, 0)
	assert.ErrorIs(t, err, ErrOutOfWorkArea)
}

func TestSession_RawSend(t *testing.T) {
	s, mock := newTestSession(t)
	mock.QueueResponse([]byte{0x09, 0xFF, 0xFF, 0xFF, 0xFE})

	resp, err := s.RawSend(context.Background(), "0a 00 04 00")
	require.NoError(t, err)
	assert.True(t, resp.HasACK())
	assert.Equal(t, RespHeartbeatACK, resp.Kind)
	assert.Equal(t, []byte{0x0A}, mock.WriteOpcodes())
}

func TestReadWindow_ACKShortCircuitOnlyWhenExpected(t *testing.T) {
	reply := []byte{0x09, 0xFF, 0xFF, 0xFF, 0xFE}

	tests := []struct {
		name string
		cmd  Command
		want []byte
	}{
		{"expected ACK closes the window", ConnectCommand(), reply[:1]},
		{"lazy command reads through a stray ACK", InitCommand(), reply},
		{"raw send reads through a stray ACK", RawCommand([]byte{0x0A, 0x00, 0x04, 0x00}), reply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newTestSession(t)
			mock.QueueResponse(reply)

			rx, err := s.readWindow(tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rx)
		})
	}
}

func TestSession_RawSend_InvalidHex(t *testing.T) {
	s, _ := newTestSession(t)

	for _, in := range []string{"zz", "0", ""} {
		_, err := s.RawSend(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidHex, "input %q", in)
	}
}

func TestSession_Send_Cancelled(t *testing.T) {
	s, mock := newTestSession(t)
	mock.EnableAutoRespond([3]byte{1, 0, 0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Send(ctx, ConnectCommand())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSession_Metrics(t *testing.T) {
	s, _ := newConnectedSession(t)

	m := s.Metrics()
	assert.Positive(t, m.FrameSendCount.Load())
	assert.Positive(t, m.AckCount.Load())
	assert.Equal(t, int32(-1), m.LastStatusPct.Load())
}

func TestSession_Close(t *testing.T) {
	s, _ := newConnectedSession(t)

	require.NoError(t, s.Close())
	assert.Equal(t, DisconnectedState, s.State())

	err := s.Home(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSessionConfig_OptionValidation(t *testing.T) {
	_, err := NewSessionConfig(WithChunkRetryLimit(0))
	assert.Error(t, err)

	_, err = NewSessionConfig(WithIdleTimeout(0))
	assert.Error(t, err)

	_, err = NewSessionConfig(WithLogger(nil))
	assert.Error(t, err)

	cfg, err := NewSessionConfig(
		WithChunkRetryLimit(5),
		WithRetryBackoff(time.Millisecond),
		WithChunkTimeout(50*time.Millisecond),
		WithIdleTimeout(time.Second),
		WithMaxWait(time.Minute),
		WithPollInterval(time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.ChunkRetryLimit())
	assert.Equal(t, time.Millisecond, cfg.RetryBackoff())
	assert.Equal(t, 50*time.Millisecond, cfg.ChunkTimeout())
	assert.Equal(t, time.Second, cfg.IdleTimeout())
	assert.Equal(t, time.Minute, cfg.MaxWait())
	assert.Equal(t, time.Millisecond, cfg.PollInterval())
}

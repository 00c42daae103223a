package k6

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openlaser/go-k6/audit"
	"github.com/openlaser/go-k6/logger"
	"github.com/openlaser/go-k6/transport"
)

// readIdleSleep paces the exchange read loop when the transport returns
// early with no data (in-memory transports never block).
const readIdleSleep = 10 * time.Millisecond

// Session drives the K6 protocol over a single transport. It owns the
// transport exclusively and serializes all operations through one mutex, so
// a Session is safe for concurrent use but runs exactly one operation at a
// time.
//
// The composite operations (Connect, Engrave, Mark, DrawBounds) are built on
// the exchange primitive and hold the mutex for their whole duration; a
// concurrent caller blocks until the running operation finishes.
type Session struct {
	mu sync.Mutex

	cfg     *SessionConfig
	tr      transport.Transport
	log     logger.Logger
	metrics *SessionMetrics

	state   atomic.Uint32
	version atomic.Value // string
}

// NewSession creates a session over tr. A nil cfg selects all defaults.
func NewSession(tr transport.Transport, cfg *SessionConfig) *Session {
	if cfg == nil {
		cfg, _ = NewSessionConfig()
	}

	s := &Session{
		cfg:     cfg,
		tr:      tr,
		log:     cfg.GetLogger(),
		metrics: newSessionMetrics(),
	}
	s.version.Store("")

	return s
}

// Metrics returns the session's atomic counters.
func (s *Session) Metrics() *SessionMetrics { return s.metrics }

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Version returns the firmware version reported during Connect, or "" before
// a successful handshake.
func (s *Session) Version() string {
	v, _ := s.version.Load().(string)
	return v
}

// Close releases the underlying transport. The session is unusable afterward.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Store(uint32(DisconnectedState))

	return s.tr.Close()
}

// checkCtx is the cooperative cancellation point between frames. A frame
// already on the wire is never interrupted.
func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// writeFrame puts one frame on the wire.
func (s *Session) writeFrame(frame []byte, label string) error {
	if s.cfg.byteSink != nil {
		s.cfg.byteSink.LogSend(frame, label)
	}

	if _, err := s.tr.Write(frame); err != nil {
		if s.cfg.byteSink != nil {
			s.cfg.byteSink.LogError(fmt.Sprintf("write %s: %v", label, err))
		}

		return fmt.Errorf("k6: write %s: %w", label, err)
	}

	s.metrics.incFrameSendCount(uint64(len(frame)))

	return nil
}

// readWindow collects response bytes for cmd until one of its stop
// conditions is met or the timeout expires: an ACK short-circuits when one
// is expected, otherwise the window closes on a trailing heartbeat or status
// frame. It reads one byte at a time so the window never swallows frames
// that belong to the next exchange; the device interleaves ACKs, heartbeats
// and status frames on a single stream with no framing between replies.
func (s *Session) readWindow(cmd Command) ([]byte, error) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	deadline := time.Now().Add(timeout)

	var rx []byte
	buf := make([]byte, 1)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return rx, nil
		}

		if err := s.tr.SetTimeout(remaining); err != nil {
			return rx, fmt.Errorf("k6: set read timeout: %w", err)
		}

		n, err := s.tr.Read(buf)
		if err != nil {
			return rx, fmt.Errorf("k6: read %s response: %w", cmd.Note, err)
		}
		if n == 0 {
			time.Sleep(readIdleSleep)
			continue
		}

		rx = append(rx, buf[:n]...)

		// Fixed-length replies (VERSION) are collected verbatim; the reply
		// bytes may coincide with the ACK value.
		if cmd.MinResponse > 0 {
			if len(rx) >= cmd.MinResponse {
				return rx, nil
			}

			continue
		}

		// Only commands that demand an ACK short-circuit on one. Lazy
		// commands (JOB_HEADER, INIT, raw sends) read through stray ACKs
		// until the trailing heartbeat or status frame; closing on the ACK
		// would leave that tail to corrupt the next exchange.
		if cmd.ExpectACK && bytes.IndexByte(rx, ACK) >= 0 {
			return rx, nil
		}
		if !cmd.ExpectACK && len(rx) >= 4 {
			tail := rx[len(rx)-4:]
			if bytes.Equal(tail, heartbeatFrame) {
				return rx, nil
			}
			if tail[0] == statusByte0 && tail[1] == statusByte1 && tail[2] == statusByte2 {
				return rx, nil
			}
		}
	}
}

// exchange sends cmd and interprets whatever comes back. It never judges the
// response; see exchangeChecked for the erroring variant.
func (s *Session) exchange(cmd Command) (Response, error) {
	start := time.Now()

	if err := s.writeFrame(cmd.Frame, cmd.Note); err != nil {
		return Response{StatusPct: -1}, err
	}

	if cmd.WriteOnly {
		resp := Response{Kind: RespNone, StatusPct: -1}
		s.auditOp(cmd, resp, start, 0)

		return resp, nil
	}

	raw, err := s.readWindow(cmd)
	if err != nil {
		return Response{Raw: raw, StatusPct: -1}, err
	}

	resp := ClassifyResponse(raw)
	s.metrics.observeResponse(resp)

	if len(raw) == 0 {
		s.metrics.incTimeoutCount()
	} else if s.cfg.byteSink != nil {
		s.cfg.byteSink.LogRecv(raw)
	}

	s.log.Debug("exchange", "cmd", cmd.Note, "resp", resp.Kind.String(), "bytes", len(raw))
	s.auditOp(cmd, resp, start, 0)

	return resp, nil
}

// exchangeChecked sends cmd and fails on an empty window or a missing
// expected ACK.
func (s *Session) exchangeChecked(cmd Command) (Response, error) {
	resp, err := s.exchange(cmd)
	if err != nil {
		return resp, err
	}

	if len(resp.Raw) == 0 {
		return resp, fmt.Errorf("%w: no response to %s", ErrTimeout, cmd.Note)
	}
	if cmd.ExpectACK && !resp.HasACK() {
		return resp, fmt.Errorf("%w: no ACK for %s (response: %s)",
			ErrDevice, cmd.Note, hex.EncodeToString(resp.Raw))
	}

	return resp, nil
}

// auditOp records one command exchange in the audit sink, if any.
func (s *Session) auditOp(cmd Command, resp Response, start time.Time, retries int) {
	if s.cfg.auditSink == nil {
		return
	}

	state := "COMPLETE"
	if len(resp.Raw) == 0 && !cmd.WriteOnly {
		state = "TIMEOUT"
	}

	pct := audit.NoStatus
	if resp.StatusPct >= 0 {
		pct = resp.StatusPct
	}

	s.cfg.auditSink.LogOperation(audit.Record{
		Phase:        cmd.Phase,
		Operation:    cmd.Note,
		Duration:     time.Since(start),
		Bytes:        len(cmd.Frame) + len(resp.Raw),
		StatusPct:    pct,
		State:        state,
		ResponseType: resp.Kind.String(),
		RetryCount:   retries,
		DeviceState:  s.State().String(),
	})
}

// requireConnected guards operations that need a completed handshake.
func (s *Session) requireConnected() error {
	if !s.State().IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// Send executes a single command exchange. Most callers want the composite
// operations instead; Send exists for protocol exploration and tooling.
func (s *Session) Send(ctx context.Context, cmd Command) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkCtx(ctx); err != nil {
		return Response{StatusPct: -1}, err
	}

	return s.exchange(cmd)
}

// Connect runs the handshake: a best-effort STOP, the VERSION query, two
// CONNECT exchanges and a HOME. On success the session is IdleState and
// Version reports the firmware version.
func (s *Session) Connect(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkCtx(ctx); err != nil {
		return "", err
	}

	s.log.Info("connecting")

	// Best-effort STOP without reading: a reply here would be consumed by
	// the VERSION read and corrupt version parsing.
	if _, err := s.exchange(StopCommand()); err != nil {
		s.log.Warn("pre-connect stop failed", "error", err)
	}

	if err := checkCtx(ctx); err != nil {
		return "", err
	}

	ver := VersionCommand()
	resp, err := s.exchange(ver)
	if err != nil {
		return "", err
	}
	if len(resp.Raw) < 3 {
		return "", fmt.Errorf("%w: no VERSION response", ErrTimeout)
	}
	version := fmt.Sprintf("%d.%d.%d", resp.Raw[0], resp.Raw[1], resp.Raw[2])

	for i := 1; i <= 2; i++ {
		if err := checkCtx(ctx); err != nil {
			return "", err
		}

		cmd := ConnectCommand()
		cmd.Note = fmt.Sprintf("CONNECT #%d", i)
		cmd.Phase = "connect"
		if _, err := s.exchangeChecked(cmd); err != nil {
			return "", err
		}
	}

	if err := checkCtx(ctx); err != nil {
		return "", err
	}

	home := HomeCommand()
	home.Phase = "connect"
	if _, err := s.exchangeChecked(home); err != nil {
		return "", err
	}

	s.version.Store(version)
	s.state.Store(uint32(IdleState))
	s.log.Info("connected", "version", version)

	return version, nil
}

// Home stops any preview and moves the gantry to the origin.
func (s *Session) Home(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConnected(); err != nil {
		return err
	}
	if err := checkCtx(ctx); err != nil {
		return err
	}

	framing := FramingCommand()
	framing.Note = "FRAMING (stop preview)"
	if _, err := s.exchangeChecked(framing); err != nil {
		return err
	}

	if err := checkCtx(ctx); err != nil {
		return err
	}

	_, err := s.exchangeChecked(HomeCommand())

	return err
}

// Stop sends the emergency stop followed by a CONNECT to reset the device
// state machine. It works in any session state. The CONNECT is best effort:
// once the stop byte is on the wire the cancel has been signalled, so a
// wedged device that never ACKs the reset is not an error.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkCtx(ctx); err != nil {
		return err
	}

	if _, err := s.exchange(StopCommand()); err != nil {
		return err
	}
	if s.State() == BusyState {
		s.state.Store(uint32(IdleState))
	}

	reset := ConnectCommand()
	reset.Note = "CONNECT (reset after stop)"
	reset.Timeout = DefaultDataTimeout
	if _, err := s.exchangeChecked(reset); err != nil {
		s.log.Warn("device reset after stop failed", "error", err)
	}

	return nil
}

// Crosshair toggles the positioning laser.
func (s *Session) Crosshair(ctx context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConnected(); err != nil {
		return err
	}
	if err := checkCtx(ctx); err != nil {
		return err
	}

	_, err := s.exchangeChecked(CrosshairCommand(on))

	return err
}

// Jog moves the head to an absolute position by previewing a 1x1 px
// rectangle there.
func (s *Session) Jog(ctx context.Context, x, y int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConnected(); err != nil {
		return err
	}
	if x < 0 || x > WorkAreaWidth || y < 0 || y > WorkAreaHeight {
		return fmt.Errorf("%w: jog target (%d, %d)", ErrOutOfWorkArea, x, y)
	}
	if err := checkCtx(ctx); err != nil {
		return err
	}

	_, err := s.exchangeChecked(BoundsCommand(1, 1, x, y))

	return err
}

// DrawBounds previews the burn area: a single 11-byte command traces the
// rectangle with the positioning laser, no image data involved.
func (s *Session) DrawBounds(ctx context.Context, width, height, centerX, centerY int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConnected(); err != nil {
		return err
	}
	if width < 1 || height < 1 || width > WorkAreaWidth || height > WorkAreaHeight {
		return fmt.Errorf("%w: bounds %dx%d", ErrOutOfWorkArea, width, height)
	}
	if err := checkCtx(ctx); err != nil {
		return err
	}

	_, err := s.exchangeChecked(BoundsCommand(width, height, centerX, centerY))

	return err
}

// RawSend parses a hex string ("0a 00 04 00", case and whitespace
// insensitive) and sends it as-is, returning the classified response. No ACK
// is demanded; exploration of unknown opcodes is the whole point.
func (s *Session) RawSend(ctx context.Context, hexStr string) (Response, error) {
	cleaned := strings.Join(strings.Fields(hexStr), "")
	frame, err := hex.DecodeString(cleaned)
	if err != nil || len(frame) == 0 {
		return Response{StatusPct: -1}, fmt.Errorf("%w: %q", ErrInvalidHex, hexStr)
	}

	return s.Send(ctx, RawCommand(frame))
}

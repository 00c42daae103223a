package k6

import (
	"context"
	"fmt"
	"time"

	"github.com/openlaser/go-k6/audit"
)

// statusWindowSize bounds the sliding buffer the watcher scans for status
// frames. 16 bytes comfortably holds a few interleaved 4-byte frames.
const statusWindowSize = 16

// waitResult is the watcher's verdict after the finalize frames.
type waitResult struct {
	// complete is true when a 100% status frame arrived.
	complete bool
	// lastPct is the last progress percentage seen, or -1 if none arrived.
	lastPct int
	// elapsed is the time spent waiting.
	elapsed time.Duration
}

// waitForCompletion scans the post-transfer byte stream for FF FF 00 XX
// status frames until one of three things happens:
//
//   - a 100% frame arrives: complete
//   - the device stays silent for the idle timeout: not complete, lastPct
//     tells the caller how far the burn got (the firmware routinely stops
//     reporting before 100%)
//   - the hard maxWait ceiling passes: ErrTimeout
//
// Cancellation is checked between reads.
func (s *Session) waitForCompletion(ctx context.Context, maxWait time.Duration) (waitResult, error) {
	start := time.Now()
	lastRx := start
	res := waitResult{lastPct: -1}

	var win []byte
	buf := make([]byte, 64)

	for {
		if err := checkCtx(ctx); err != nil {
			res.elapsed = time.Since(start)
			return res, err
		}
		if time.Since(start) > maxWait {
			res.elapsed = time.Since(start)
			return res, fmt.Errorf("%w: burn did not complete within %v (last %d%%)",
				ErrTimeout, maxWait, res.lastPct)
		}

		if err := s.tr.SetTimeout(s.cfg.pollInterval); err != nil {
			return res, fmt.Errorf("k6: set read timeout: %w", err)
		}

		n, err := s.tr.Read(buf)
		if err != nil {
			return res, fmt.Errorf("k6: completion read: %w", err)
		}
		if n == 0 {
			if time.Since(lastRx) > s.cfg.idleTimeout {
				res.elapsed = time.Since(start)
				s.log.Warn("device went idle during burn wait", "last_pct", res.lastPct)

				return res, nil
			}
			time.Sleep(readIdleSleep)

			continue
		}

		lastRx = time.Now()
		if s.cfg.byteSink != nil {
			s.cfg.byteSink.LogRecv(buf[:n])
		}

		win = append(win, buf[:n]...)
		if len(win) > statusWindowSize {
			win = win[len(win)-statusWindowSize:]
		}

		if done := s.scanStatusFrames(win, &res); done {
			res.complete = true
			res.elapsed = time.Since(start)

			return res, nil
		}
	}
}

// scanStatusFrames walks the sliding window, reporting each new progress
// value once. Returns true on a 100% frame.
func (s *Session) scanStatusFrames(win []byte, res *waitResult) bool {
	for i := 0; i+4 <= len(win); i++ {
		if win[i] != statusByte0 || win[i+1] != statusByte1 || win[i+2] != statusByte2 {
			continue
		}
		pct := int(win[i+3])
		if pct > 100 {
			continue
		}

		if pct != res.lastPct {
			res.lastPct = pct
			s.metrics.LastStatusPct.Store(int32(pct)) //nolint:gosec // bounded [0,100]
			s.log.Debug("burn progress", "pct", pct)
			s.auditStatus(pct)
		}

		if pct == 100 {
			return true
		}
	}

	return false
}

func (s *Session) auditStatus(pct int) {
	if s.cfg.auditSink == nil {
		return
	}

	deviceState := "BURNING"
	if pct >= 100 {
		deviceState = "COMPLETE"
	}

	s.cfg.auditSink.LogOperation(audit.Record{
		Phase:        "wait",
		Operation:    "STATUS",
		StatusPct:    pct,
		ResponseType: "STATUS",
		DeviceState:  deviceState,
	})
}

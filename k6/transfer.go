package k6

import (
	"context"
	"fmt"

	"github.com/openlaser/go-k6/audit"
	"github.com/openlaser/go-k6/internal/pool"
)

// burnPayload streams packed scanlines to the device as DATA chunks. Each
// line is split into MaxChunkSize pieces and every chunk must be ACK'd; a
// failed chunk is resent with exponential backoff until the retry budget is
// exhausted. This is the only layer in the stack that retries.
//
// Returns the number of chunks acknowledged. On failure the error names the
// line and byte offset of the chunk that gave up.
func (s *Session) burnPayload(ctx context.Context, lines [][]byte) (int, error) {
	totalChunks := 0
	for _, line := range lines {
		totalChunks += (len(line) + MaxChunkSize - 1) / MaxChunkSize
	}

	chunkCount := 0
	for lineIdx, line := range lines {
		for offset := 0; offset < len(line); offset += MaxChunkSize {
			if err := checkCtx(ctx); err != nil {
				return chunkCount, err
			}

			end := min(offset+MaxChunkSize, len(line))
			note := fmt.Sprintf("DATA chunk %d/%d (line %d)", chunkCount+1, totalChunks, lineIdx)
			if err := s.sendChunk(ctx, line[offset:end], note, lineIdx, offset); err != nil {
				return chunkCount, err
			}
			chunkCount++
		}
	}

	return chunkCount, nil
}

// sendChunk sends one DATA chunk, retrying on timeout or missing ACK.
// Backoff doubles per attempt starting from the configured base.
func (s *Session) sendChunk(ctx context.Context, chunk []byte, note string, lineIdx, offset int) error {
	cmd, err := DataCommand(chunk)
	if err != nil {
		return err
	}
	cmd.Note = note
	cmd.Timeout = s.cfg.chunkTimeout

	limit := s.cfg.chunkRetryLimit
	var lastErr error
	for attempt := 1; attempt <= limit; attempt++ {
		if attempt > 1 {
			s.metrics.incChunkRetryCount()
			s.auditRetry(lineIdx, attempt-1)

			backoff := s.cfg.retryBackoff << (attempt - 2)
			if err := pool.Wait(ctx, backoff); err != nil {
				return err
			}
		}

		if _, lastErr = s.exchangeChecked(cmd); lastErr == nil {
			s.metrics.incChunkSendCount()
			return nil
		}

		s.log.Warn("chunk send failed",
			"line", lineIdx, "offset", offset, "attempt", attempt, "error", lastErr)
	}

	return fmt.Errorf("k6: chunk failed after %d attempts (line %d, offset %d): %w",
		limit, lineIdx, offset, lastErr)
}

func (s *Session) auditRetry(lineIdx, retry int) {
	if s.cfg.auditSink == nil {
		return
	}

	s.cfg.auditSink.LogOperation(audit.Record{
		Phase:       "burn",
		Operation:   fmt.Sprintf("DATA line %d RETRY", lineIdx),
		Duration:    0,
		StatusPct:   audit.NoStatus,
		State:       "RETRY",
		RetryCount:  retry,
		DeviceState: "ERROR",
	})
}

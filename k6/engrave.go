package k6

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"
)

// Power and depth ranges accepted by the firmware.
const (
	MaxPower = 1000
	MaxDepth = 255
)

// Mark defaults: a light single-pixel burn for positioning tests.
const (
	DefaultMarkPower = 500
	DefaultMarkDepth = 10

	// markWaitTimeout caps the completion wait for a mark; a single pixel
	// finishes near-instantly.
	markWaitTimeout = 5 * time.Second
)

// preClearDrain is how long the engrave pre-clear listens for stale bytes.
const preClearDrain = 100 * time.Millisecond

// BurnJob is a fully prepared raster burn: packed scanlines plus the
// parameters that go into the job header. Jobs are built offline (from an
// image or raw rows) and validated before any frame hits the wire.
type BurnJob struct {
	Width  int
	Height int
	Power  int // 0-1000
	Depth  int // 1-255

	// CenterX/CenterY position the job on the bed. Zero selects the
	// defaults: width/2+67 and 760.
	CenterX int
	CenterY int

	// Lines holds one packed scanline per row, ceil(Width/8) bytes each,
	// MSB first, 1 = burn.
	Lines [][]byte

	// DryRun transfers the full job but never sends the INIT frames, so the
	// laser stays off. Useful for protocol verification against real
	// hardware.
	DryRun bool
}

// Validate checks the job against the work area and the packing invariants.
func (job *BurnJob) Validate() error {
	if job.Width < 1 || job.Height < 1 || job.Width > WorkAreaWidth || job.Height > WorkAreaHeight {
		return fmt.Errorf("%w: %dx%d (max %dx%d)",
			ErrImageTooLarge, job.Width, job.Height, WorkAreaWidth, WorkAreaHeight)
	}
	if job.Power < 0 || job.Power > MaxPower {
		return fmt.Errorf("k6: power %d out of range [0, %d]", job.Power, MaxPower)
	}
	if job.Depth < 1 || job.Depth > MaxDepth {
		return fmt.Errorf("k6: depth %d out of range [1, %d]", job.Depth, MaxDepth)
	}

	if len(job.Lines) != job.Height {
		return fmt.Errorf("%w: %d lines for height %d", ErrScanlineLength, len(job.Lines), job.Height)
	}
	bytesPerLine := (job.Width + 7) / 8
	for i, line := range job.Lines {
		if len(line) != bytesPerLine {
			return fmt.Errorf("%w: line %d has %d bytes, want %d",
				ErrScanlineLength, i, len(line), bytesPerLine)
		}
	}

	return nil
}

// header builds the job's JOB_HEADER command.
func (job *BurnJob) header() Command {
	return RasterJobHeaderCommand(job.Width, job.Height, job.Power, job.Depth, job.CenterX, job.CenterY)
}

// BuildSequence expands the job into its full command sequence, finalize
// frames included, for preview and validation without hardware.
func (job *BurnJob) BuildSequence() (*CommandSequence, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	seq := NewCommandSequence(FramingCommand(), job.header())

	for i := 1; i <= 2; i++ {
		cmd := ConnectCommand()
		cmd.Note = fmt.Sprintf("CONNECT #%d", i)
		seq.Append(cmd)
	}

	for _, line := range job.Lines {
		for offset := 0; offset < len(line); offset += MaxChunkSize {
			end := min(offset+MaxChunkSize, len(line))
			cmd, err := DataCommand(line[offset:end])
			if err != nil {
				return nil, err
			}
			seq.Append(cmd)
		}
	}

	if !job.DryRun {
		for i := 1; i <= 2; i++ {
			cmd := InitCommand()
			cmd.Note = fmt.Sprintf("INIT #%d", i)
			seq.Append(cmd)
		}
	}

	return seq, nil
}

// PackRow packs one row of pixels MSB-first, true = burn. The row is padded
// to a byte boundary with skip bits.
func PackRow(pixels []bool) []byte {
	packed := make([]byte, (len(pixels)+7)/8)
	for i, burn := range pixels {
		if burn {
			packed[i/8] |= 1 << (7 - i%8)
		}
	}

	return packed
}

// PackImage thresholds img at 50% gray and packs each row MSB-first, one bit
// per pixel, 1 = burn (dark pixels burn, light pixels skip).
func PackImage(img image.Image) (lines [][]byte, width, height int) {
	b := img.Bounds()
	width, height = b.Dx(), b.Dy()

	lines = make([][]byte, height)
	row := make([]bool, width)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gray, _ := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			row[x] = gray.Y < 128
		}
		lines[y] = PackRow(row)
	}

	return lines, width, height
}

// NewImageJob builds a validated BurnJob from an image.
func NewImageJob(img image.Image, power, depth int) (*BurnJob, error) {
	lines, width, height := PackImage(img)

	job := &BurnJob{
		Width:  width,
		Height: height,
		Power:  power,
		Depth:  depth,
		Lines:  lines,
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// BurnOutcome tags how a burn ended.
type BurnOutcome uint8

const (
	// OutcomeComplete means the firmware reported 100%, or a dry run
	// transferred every chunk.
	OutcomeComplete BurnOutcome = iota
	// OutcomeIdleSuccess means the firmware went quiet after reaching at
	// least 50%, which real hardware routinely does near the end of a burn.
	OutcomeIdleSuccess
	// OutcomeFailed means the firmware went quiet below 50%.
	OutcomeFailed
	// OutcomeCancelled means the caller's context ended mid-burn.
	OutcomeCancelled
)

func (o BurnOutcome) String() string {
	switch o {
	case OutcomeComplete:
		return "COMPLETE"
	case OutcomeIdleSuccess:
		return "IDLE_SUCCESS"
	case OutcomeFailed:
		return "FAILED"
	case OutcomeCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// BurnResult reports how a burn ended.
type BurnResult struct {
	// Outcome tags the terminal state of the burn.
	Outcome BurnOutcome
	// OK is true when the burn completed, including the idle-timeout case
	// where the firmware stopped reporting after reaching at least 50%.
	OK bool
	// Chunks is the number of DATA chunks acknowledged.
	Chunks int
	// LastPct is the last progress percentage seen, or -1.
	LastPct int
	// TotalTime is the wall-clock completion wait, zero for dry runs and
	// idle timeouts.
	TotalTime time.Duration
	// Message is a human-readable summary.
	Message string
}

// Engrave runs the full burn sequence for job: pre-clear, FRAMING,
// JOB_HEADER, CONNECT x2, the chunked data transfer, INIT x2 and the
// completion wait. A dry-run job stops after the transfer with the laser
// never armed.
//
// The session mutex is held throughout; ctx cancels cooperatively between
// frames.
func (s *Session) Engrave(ctx context.Context, job *BurnJob) (*BurnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConnected(); err != nil {
		return nil, err
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	s.preClear()

	return s.runJob(ctx, job, s.cfg.maxWait)
}

// Mark burns a single pixel at (x, y), a light touch for verifying
// positioning and mechanical limits. power/depth of 0 select the defaults.
func (s *Session) Mark(ctx context.Context, x, y, power, depth int) (*BurnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConnected(); err != nil {
		return nil, err
	}

	if power == 0 {
		power = DefaultMarkPower
	}
	if depth == 0 {
		depth = DefaultMarkDepth
	}

	job := &BurnJob{
		Width:   1,
		Height:  1,
		Power:   power,
		Depth:   depth,
		CenterX: x,
		CenterY: y,
		Lines:   [][]byte{{0xFF}},
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	return s.runJob(ctx, job, markWaitTimeout)
}

// preClear writes a bare FRAMING and drains whatever the device answers.
// Best effort: a stuck preview otherwise makes the real FRAMING exchange
// read stale bytes.
func (s *Session) preClear() {
	if err := s.writeFrame(BuildFixedCommand(OpFraming), "PRE_CLEAR"); err != nil {
		s.log.Warn("pre-clear write failed", "error", err)
		return
	}

	time.Sleep(50 * time.Millisecond)
	if err := s.tr.SetTimeout(preClearDrain); err != nil {
		return
	}
	buf := make([]byte, 64)
	if n, err := s.tr.Read(buf); err == nil && n > 0 && s.cfg.byteSink != nil {
		s.cfg.byteSink.LogRecv(buf[:n])
	}
}

// cancelledResult tags a burn that died to context cancellation. It travels
// alongside the context error so callers still see how far the job got.
func cancelledResult(chunks int) *BurnResult {
	return &BurnResult{
		Outcome: OutcomeCancelled,
		Chunks:  chunks,
		LastPct: -1,
		Message: "Burn cancelled",
	}
}

// runJob executes the common burn pipeline. Callers hold the mutex and have
// validated the job.
func (s *Session) runJob(ctx context.Context, job *BurnJob, maxWait time.Duration) (*BurnResult, error) {
	s.state.Store(uint32(BusyState))
	defer s.state.Store(uint32(IdleState))

	if err := checkCtx(ctx); err != nil {
		return cancelledResult(0), err
	}
	if _, err := s.exchangeChecked(FramingCommand()); err != nil {
		return nil, err
	}

	if err := checkCtx(ctx); err != nil {
		return cancelledResult(0), err
	}
	if _, err := s.exchangeChecked(job.header()); err != nil {
		return nil, err
	}

	for i := 1; i <= 2; i++ {
		if err := checkCtx(ctx); err != nil {
			return cancelledResult(0), err
		}

		cmd := ConnectCommand()
		cmd.Note = fmt.Sprintf("CONNECT #%d", i)
		if _, err := s.exchangeChecked(cmd); err != nil {
			return nil, err
		}
	}

	chunks, err := s.burnPayload(ctx, job.Lines)
	if err != nil {
		if ctx.Err() != nil {
			return cancelledResult(chunks), err
		}
		return nil, err
	}

	if job.DryRun {
		s.log.Info("dry run complete", "chunks", chunks)

		return &BurnResult{
			Outcome: OutcomeComplete,
			OK:      true,
			Chunks:  chunks,
			LastPct: -1,
			Message: fmt.Sprintf("Dry run complete (%d chunks, laser not armed)", chunks),
		}, nil
	}

	for i := 1; i <= 2; i++ {
		if err := checkCtx(ctx); err != nil {
			return cancelledResult(chunks), err
		}

		cmd := InitCommand()
		cmd.Note = fmt.Sprintf("INIT #%d", i)
		if _, err := s.exchangeChecked(cmd); err != nil {
			return nil, err
		}
	}

	wait, err := s.waitForCompletion(ctx, maxWait)
	if err != nil {
		if ctx.Err() != nil {
			return cancelledResult(chunks), err
		}
		return nil, err
	}

	return burnVerdict(wait, chunks), nil
}

// burnVerdict maps the watcher's result to a burn outcome. The firmware
// routinely goes quiet before reporting 100%, typically in the 80-90% range,
// so an idle timeout at 50% or above counts as a finished burn.
func burnVerdict(wait waitResult, chunks int) *BurnResult {
	switch {
	case wait.complete:
		return &BurnResult{
			Outcome:   OutcomeComplete,
			OK:        true,
			Chunks:    chunks,
			LastPct:   wait.lastPct,
			TotalTime: wait.elapsed,
			Message:   fmt.Sprintf("Burn complete (%d chunks, %.1fs)", chunks, wait.elapsed.Seconds()),
		}

	case wait.lastPct >= 50:
		return &BurnResult{
			Outcome: OutcomeIdleSuccess,
			OK:      true,
			Chunks:  chunks,
			LastPct: wait.lastPct,
			Message: fmt.Sprintf("Burn complete (idle timeout at %d%%, %d chunks)", wait.lastPct, chunks),
		}

	default:
		return &BurnResult{
			Outcome: OutcomeFailed,
			OK:      false,
			Chunks:  chunks,
			LastPct: wait.lastPct,
			Message: fmt.Sprintf("Burn incomplete: idle timeout (last %d%%)", wait.lastPct),
		}
	}
}

package k6

import (
	"fmt"
	"time"
)

// Device work area in pixels. Older firmware accepted 1600x1600, but the
// measured Y travel tops out at 1520 px and current firmware rejects jobs
// past it, so 1520 is the limit enforced here.
const (
	WorkAreaWidth  = 1600
	WorkAreaHeight = 1520
)

// Default per-command timeouts. Homing physically moves the gantry to the
// origin and only ACKs on arrival; JOB_HEADER replies arrive lazily, often
// seconds later together with heartbeats.
const (
	DefaultCommandTimeout   = 1 * time.Second
	DefaultDataTimeout      = 2 * time.Second
	DefaultJobHeaderTimeout = 10 * time.Second
	DefaultInitTimeout      = 3 * time.Second
	DefaultHomeTimeout      = 10 * time.Second
)

// Command is one immutable protocol exchange: the exact frame to put on the
// wire plus the expectations against the device's reply. Commands are plain
// values; building one performs no I/O, so a full job can be assembled and
// inspected before a port is ever opened.
type Command struct {
	Op    Opcode
	Frame []byte

	// ExpectACK makes the missing-ACK case an error. Frames the firmware
	// answers lazily (JOB_HEADER, INIT) clear it.
	ExpectACK bool

	// WriteOnly skips the read entirely. Only STOP uses it: the device
	// answers nothing while aborting and a read would just burn the timeout.
	WriteOnly bool

	// MinResponse keeps the read window open until at least this many bytes
	// arrive or the timeout expires. Zero accepts the first read.
	MinResponse int

	Timeout time.Duration

	// Note labels the command in audit logs and byte dumps.
	Note string

	// Phase groups related commands in the audit log (setup, preview, burn,
	// finalize, connect, operation).
	Phase string
}

// FixedCommand builds the common 4-byte command for op, expecting an ACK.
func FixedCommand(op Opcode) Command {
	return Command{
		Op:        op,
		Frame:     BuildFixedCommand(op),
		ExpectACK: true,
		Timeout:   DefaultCommandTimeout,
		Note:      op.String(),
		Phase:     "operation",
	}
}

// ConnectCommand builds the CONNECT handshake frame.
func ConnectCommand() Command {
	cmd := FixedCommand(OpConnect)
	cmd.Phase = "setup"

	return cmd
}

// FramingCommand builds the FRAMING frame that stops preview mode and marks
// the official start of a burn sequence.
func FramingCommand() Command {
	cmd := FixedCommand(OpFraming)
	cmd.Phase = "setup"

	return cmd
}

// HomeCommand builds the HOME frame with the long gantry-travel timeout.
func HomeCommand() Command {
	cmd := FixedCommand(OpHome)
	cmd.Timeout = DefaultHomeTimeout

	return cmd
}

// StopCommand builds the write-only STOP frame.
func StopCommand() Command {
	cmd := FixedCommand(OpStop)
	cmd.ExpectACK = false
	cmd.WriteOnly = true

	return cmd
}

// VersionCommand builds the VERSION query; the reply is three firmware
// version bytes rather than an ACK.
func VersionCommand() Command {
	cmd := FixedCommand(OpVersion)
	cmd.ExpectACK = false
	cmd.MinResponse = 3
	cmd.Phase = "connect"

	return cmd
}

// CrosshairCommand builds the positioning-laser toggle.
func CrosshairCommand(on bool) Command {
	if on {
		return FixedCommand(OpCrosshairOn)
	}

	return FixedCommand(OpCrosshairOff)
}

// ResetMCUCommand builds the firmware reset frame. The device reboots and
// drops the link, so no reply is expected.
func ResetMCUCommand() Command {
	cmd := FixedCommand(OpResetMCU)
	cmd.ExpectACK = false
	cmd.WriteOnly = true

	return cmd
}

// DataCommand wraps a packed-pixel payload in a DATA frame.
func DataCommand(payload []byte) (Command, error) {
	frame, err := BuildDataPacket(payload)
	if err != nil {
		return Command{}, err
	}

	return Command{
		Op:        OpData,
		Frame:     frame,
		ExpectACK: true,
		Timeout:   DefaultDataTimeout,
		Note:      fmt.Sprintf("DATA %d bytes", len(payload)),
		Phase:     "burn",
	}, nil
}

// JobHeaderCommand builds a JOB_HEADER exchange. The firmware acknowledges
// job headers late (often together with the following CONNECT), so no ACK is
// demanded here.
func JobHeaderCommand(p JobParams) Command {
	return Command{
		Op:      OpJobHeader,
		Frame:   BuildJobHeader(p),
		Timeout: DefaultJobHeaderTimeout,
		Note:    "JOB_HEADER",
		Phase:   "setup",
	}
}

// RasterJobHeaderCommand builds a JOB_HEADER for a raster-only burn.
func RasterJobHeaderCommand(width, height, power, depth, centerX, centerY int) Command {
	cmd := JobHeaderCommand(JobParams{})
	cmd.Frame = BuildRasterJobHeader(width, height, power, depth, centerX, centerY)

	return cmd
}

// BoundsCommand builds the BOUNDS preview exchange.
func BoundsCommand(width, height, centerX, centerY int) Command {
	return Command{
		Op:        OpBounds,
		Frame:     BuildBoundsPacket(width, height, centerX, centerY),
		ExpectACK: true,
		Timeout:   DefaultDataTimeout,
		Note:      fmt.Sprintf("BOUNDS %dx%d", width, height),
		Phase:     "preview",
	}
}

// InitCommand builds the INIT exchange that arms the burn. Like JOB_HEADER
// the firmware does not ACK it promptly.
func InitCommand() Command {
	return Command{
		Op:      OpInit,
		Frame:   BuildInit(),
		Timeout: DefaultInitTimeout,
		Note:    "INIT",
		Phase:   "finalize",
	}
}

// RawCommand wraps arbitrary frame bytes for exploratory sends. No ACK is
// demanded; whatever comes back is reported as-is.
func RawCommand(frame []byte) Command {
	return Command{
		Op:      Opcode(frame[0]),
		Frame:   frame,
		Timeout: DefaultDataTimeout,
		Note:    fmt.Sprintf("RAW %s", Opcode(frame[0])),
		Phase:   "operation",
	}
}

// Bounds is the spatial envelope a queued job occupies on the device bed.
type Bounds struct {
	Width   int
	Height  int
	CenterX int
	CenterY int
	MinX    int
	MaxX    int
	MinY    int
	MaxY    int
}

// Fits reports whether the envelope lies inside the work area.
func (b Bounds) Fits() bool {
	return b.MinX >= 0 && b.MinY >= 0 && b.MaxX <= WorkAreaWidth && b.MaxY <= WorkAreaHeight
}

// dataChunkCost is the observed on-device handling time per DATA chunk,
// used for the duration estimate.
const dataChunkCost = 100 * time.Millisecond

// SequenceStats summarizes a command sequence.
type SequenceStats struct {
	Commands   int
	TotalBytes int // frame bytes including headers and checksums
	DataFrames int
	DataBytes  int // raster payload bytes inside DATA frames
	ByOpcode   map[Opcode]int

	// Estimated is a rough worst-case duration: the sum of per-command
	// timeouts plus the observed per-chunk handling cost.
	Estimated time.Duration
}

// CommandSequence is an ordered list of commands. It is the dry-run
// artifact of the composite operations: a full job can be assembled,
// summarized and validated without touching hardware, then handed to a
// session for execution.
type CommandSequence struct {
	cmds []Command
}

// NewCommandSequence creates a sequence from the given commands.
func NewCommandSequence(cmds ...Command) *CommandSequence {
	return &CommandSequence{cmds: cmds}
}

// Append adds commands to the end of the sequence.
func (s *CommandSequence) Append(cmds ...Command) {
	s.cmds = append(s.cmds, cmds...)
}

// Len returns the number of commands.
func (s *CommandSequence) Len() int { return len(s.cmds) }

// Commands returns the backing slice. Callers must not mutate it.
func (s *CommandSequence) Commands() []Command { return s.cmds }

// Stats walks the sequence once and returns aggregate counts.
func (s *CommandSequence) Stats() SequenceStats {
	stats := SequenceStats{ByOpcode: make(map[Opcode]int)}
	for _, cmd := range s.cmds {
		stats.Commands++
		stats.TotalBytes += len(cmd.Frame)
		stats.ByOpcode[cmd.Op]++
		stats.Estimated += cmd.Timeout
		if cmd.Op == OpData {
			stats.DataFrames++
			stats.DataBytes += len(cmd.Frame) - 4
			stats.Estimated += dataChunkCost
		}
	}

	return stats
}

// Bounds returns the spatial envelope declared by the most recent JOB_HEADER
// in the sequence, or false if none is present.
func (s *CommandSequence) Bounds() (Bounds, bool) {
	for i := len(s.cmds) - 1; i >= 0; i-- {
		if s.cmds[i].Op != OpJobHeader {
			continue
		}
		if b, ok := ParseJobHeader(s.cmds[i].Frame); ok {
			return b, true
		}
	}

	return Bounds{}, false
}

// Validate checks the sequence for structural anomalies and returns one
// warning string per finding. An empty result means the sequence looks like
// a well-formed job; warnings never block execution.
func (s *CommandSequence) Validate() []string {
	var warnings []string

	seenHeader := false
	warnedOrphan := false
	dataFrames := 0
	initFrames := 0
	for i, cmd := range s.cmds {
		switch cmd.Op {
		case OpJobHeader:
			seenHeader = true
		case OpData:
			dataFrames++
			if !seenHeader && !warnedOrphan {
				warnings = append(warnings, fmt.Sprintf("command %d: DATA before any JOB_HEADER", i))
				warnedOrphan = true
			}
		case OpInit:
			initFrames++
		}
	}

	if seenHeader && dataFrames > 0 && initFrames == 0 {
		warnings = append(warnings, "job transfers data but never arms the burn (no INIT)")
	}
	if initFrames > 0 && dataFrames == 0 {
		warnings = append(warnings, "INIT present without any DATA frames")
	}

	if b, ok := s.Bounds(); ok && !b.Fits() {
		warnings = append(warnings, fmt.Sprintf(
			"declared bounds [%d,%d]x[%d,%d] exceed work area %dx%d",
			b.MinX, b.MaxX, b.MinY, b.MaxY, WorkAreaWidth, WorkAreaHeight))
	}

	return warnings
}

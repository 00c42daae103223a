package k6

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandConstructors(t *testing.T) {
	tests := []struct {
		name        string
		cmd         Command
		op          Opcode
		expectACK   bool
		writeOnly   bool
		minResponse int
		timeout     time.Duration
		phase       string
	}{
		{"connect", ConnectCommand(), OpConnect, true, false, 0, time.Second, "setup"},
		{"framing", FramingCommand(), OpFraming, true, false, 0, time.Second, "setup"},
		{"home", HomeCommand(), OpHome, true, false, 0, 10 * time.Second, "operation"},
		{"stop", StopCommand(), OpStop, false, true, 0, time.Second, "operation"},
		{"version", VersionCommand(), OpVersion, false, false, 3, time.Second, "connect"},
		{"crosshair on", CrosshairCommand(true), OpCrosshairOn, true, false, 0, time.Second, "operation"},
		{"crosshair off", CrosshairCommand(false), OpCrosshairOff, true, false, 0, time.Second, "operation"},
		{"init", InitCommand(), OpInit, false, false, 0, 3 * time.Second, "finalize"},
		{"bounds", BoundsCommand(10, 10, 0, 0), OpBounds, true, false, 0, 2 * time.Second, "preview"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.op, tt.cmd.Op)
			assert.Equal(t, byte(tt.op), tt.cmd.Frame[0])
			assert.Equal(t, tt.expectACK, tt.cmd.ExpectACK)
			assert.Equal(t, tt.writeOnly, tt.cmd.WriteOnly)
			assert.Equal(t, tt.minResponse, tt.cmd.MinResponse)
			assert.Equal(t, tt.timeout, tt.cmd.Timeout)
			assert.Equal(t, tt.phase, tt.cmd.Phase)
		})
	}
}

func TestDataCommand(t *testing.T) {
	cmd, err := DataCommand([]byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, OpData, cmd.Op)
	assert.True(t, cmd.ExpectACK)
	assert.Equal(t, "burn", cmd.Phase)
	assert.Len(t, cmd.Frame, 6)

	_, err = DataCommand(make([]byte, MaxChunkSize+1))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func buildTestJobSequence(t *testing.T) *CommandSequence {
	t.Helper()

	job := &BurnJob{
		Width:  16,
		Height: 2,
		Power:  1000,
		Depth:  100,
		Lines:  [][]byte{{0xFF, 0x00}, {0x0F, 0xF0}},
	}
	seq, err := job.BuildSequence()
	require.NoError(t, err)

	return seq
}

func TestCommandSequence_Stats(t *testing.T) {
	seq := buildTestJobSequence(t)

	stats := seq.Stats()
	// FRAMING + JOB_HEADER + CONNECT x2 + DATA x2 + INIT x2.
	assert.Equal(t, 8, stats.Commands)
	assert.Equal(t, 2, stats.DataFrames)
	assert.Equal(t, 4, stats.DataBytes)
	assert.Equal(t, 2, stats.ByOpcode[OpConnect])
	assert.Equal(t, 2, stats.ByOpcode[OpInit])
	assert.Equal(t, 1, stats.ByOpcode[OpJobHeader])

	// 4+38+4+4+6+6+11+11 frame bytes.
	assert.Equal(t, 84, stats.TotalBytes)

	// Timeout sum 1+10+1+1+2+2+3+3 s plus 100ms per DATA chunk.
	assert.Equal(t, 23*time.Second+200*time.Millisecond, stats.Estimated)
}

func TestCommandSequence_BoundsMostRecentHeaderWins(t *testing.T) {
	seq := NewCommandSequence(
		RasterJobHeaderCommand(100, 100, 1000, 50, 200, 200),
		RasterJobHeaderCommand(40, 20, 1000, 50, 500, 600),
	)

	b, ok := seq.Bounds()
	require.True(t, ok)
	assert.Equal(t, 40, b.Width)
	assert.Equal(t, 20, b.Height)
	assert.Equal(t, 500, b.CenterX)
	assert.Equal(t, 600, b.CenterY)
}

func TestCommandSequence_BoundsMissing(t *testing.T) {
	seq := NewCommandSequence(ConnectCommand(), FramingCommand())

	_, ok := seq.Bounds()
	assert.False(t, ok)
}

func TestCommandSequence_Validate(t *testing.T) {
	t.Run("well-formed job has no warnings", func(t *testing.T) {
		assert.Empty(t, buildTestJobSequence(t).Validate())
	})

	t.Run("data before header", func(t *testing.T) {
		data, err := DataCommand([]byte{0x01})
		require.NoError(t, err)

		seq := NewCommandSequence(data, RasterJobHeaderCommand(8, 1, 1000, 50, 100, 100))
		warnings := seq.Validate()
		require.Len(t, warnings, 2) // orphan DATA + no INIT
		assert.Contains(t, warnings[0], "DATA before any JOB_HEADER")
	})

	t.Run("missing init", func(t *testing.T) {
		data, err := DataCommand([]byte{0x01})
		require.NoError(t, err)

		seq := NewCommandSequence(RasterJobHeaderCommand(8, 1, 1000, 50, 100, 100), data)
		warnings := seq.Validate()
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "no INIT")
	})

	t.Run("init without data", func(t *testing.T) {
		seq := NewCommandSequence(InitCommand())
		warnings := seq.Validate()
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "INIT present without any DATA")
	})

	t.Run("bounds exceed work area", func(t *testing.T) {
		// Default center X pushes a full-width job past the right edge.
		seq := NewCommandSequence(RasterJobHeaderCommand(1600, 100, 1000, 50, 0, 0))
		warnings := seq.Validate()
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "exceed work area")
	})
}

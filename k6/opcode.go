package k6

import "fmt"

// Opcode is the first byte of every K6 command frame. The set is fixed and
// closed; it was recovered by observing the vendor application's traffic.
type Opcode byte

const (
	OpCrosshairOn   Opcode = 0x06
	OpCrosshairOff  Opcode = 0x07
	OpConnect       Opcode = 0x0A
	OpStop          Opcode = 0x16
	OpHome          Opcode = 0x17
	OpBounds        Opcode = 0x20
	OpFraming       Opcode = 0x21
	OpData          Opcode = 0x22
	OpJobHeader     Opcode = 0x23
	OpInit          Opcode = 0x24
	OpSetSpeedPower Opcode = 0x25
	OpSetFocusAngle Opcode = 0x28
	OpResetMCU      Opcode = 0xFE
	OpVersion       Opcode = 0xFF
)

// String returns the opcode's protocol name.
func (o Opcode) String() string {
	switch o {
	case OpCrosshairOn:
		return "CROSSHAIR_ON"
	case OpCrosshairOff:
		return "CROSSHAIR_OFF"
	case OpConnect:
		return "CONNECT"
	case OpStop:
		return "STOP"
	case OpHome:
		return "HOME"
	case OpBounds:
		return "BOUNDS"
	case OpFraming:
		return "FRAMING"
	case OpData:
		return "DATA"
	case OpJobHeader:
		return "JOB_HEADER"
	case OpInit:
		return "INIT"
	case OpSetSpeedPower:
		return "SET_SPEED_POWER"
	case OpSetFocusAngle:
		return "SET_FOCUS_ANGLE"
	case OpResetMCU:
		return "RESET_MCU"
	case OpVersion:
		return "VERSION"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(o))
	}
}

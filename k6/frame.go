package k6

import (
	"encoding/binary"
	"fmt"
)

// ACK is the single-byte positive acknowledgement from the device.
const ACK byte = 0x09

// MaxChunkSize is the maximum DATA payload per frame. Larger payloads must
// be split by the transfer engine.
const MaxChunkSize = 1900

// jobHeaderSize is the fixed size of the JOB_HEADER frame.
const jobHeaderSize = 38

// heartbeatFrame is the 4-byte keep-alive the device emits while busy.
var heartbeatFrame = []byte{0xFF, 0xFF, 0xFF, 0xFE}

// Status frames are FF FF 00 XX where XX is the completion percentage.
const (
	statusByte0 = 0xFF
	statusByte1 = 0xFF
	statusByte2 = 0x00
)

// Default center coordinates. The device work area is wider than the
// mechanical origin, so the vendor application offsets X by 67 pixels and
// centers full-area burns at Y=760 (the middle of the 1520 px Y travel).
// Callers should supply explicit centers; these are the only defaults the
// codec applies.
const (
	DefaultCenterXOffset = 67
	DefaultBurnCenterY   = 760
)

// DefaultCenterX returns the default X center for a raster of the given width.
func DefaultCenterX(width int) int {
	return width/2 + DefaultCenterXOffset
}

// Checksum computes the frame check byte: the two's-complement (mod 256)
// negative sum of all preceding bytes, so that the completed frame sums to
// zero mod 256.
func Checksum(frame []byte) byte {
	var sum byte
	for _, b := range frame {
		sum += b
	}
	return -sum
}

// BuildDataPacket builds a DATA (0x22) frame around a payload of packed
// pixel bytes.
//
// Layout:
//
//	0:    opcode 0x22
//	1-2:  frame length, big-endian (payload length + 4)
//	3..:  payload
//	last: checksum
func BuildDataPacket(payload []byte) ([]byte, error) {
	if len(payload) > MaxChunkSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), MaxChunkSize)
	}

	frameLen := len(payload) + 4
	pkt := make([]byte, frameLen)
	pkt[0] = byte(OpData)
	binary.BigEndian.PutUint16(pkt[1:3], uint16(frameLen)) //nolint:gosec // frameLen <= 1904
	copy(pkt[3:], payload)
	pkt[frameLen-1] = Checksum(pkt[:frameLen-1])

	return pkt, nil
}

// JobParams holds every field of the 38-byte JOB_HEADER frame. Vector fields
// are zero for raster-only burns; the device still requires their slots.
type JobParams struct {
	RasterW     uint16
	RasterH     uint16
	RasterPower uint16 // 0-1000
	RasterDepth uint16 // 1-255
	VectorW     uint16
	VectorH     uint16
	TotalSize   uint32 // packed raster bytes: ceil(w/8) * h
	VectorPower uint16
	VectorDepth uint16
	PointCount  uint32
	CenterX     uint16
	CenterY     uint16
	Quality     byte
}

// BuildJobHeader builds the JOB_HEADER (0x23) frame from explicit parameters.
//
// Byte 3 carries a packet-count heuristic (total_size/4094 + 1) the vendor
// firmware expects; byte 10 holds an unexplained constant 33 observed in all
// captures.
func BuildJobHeader(p JobParams) []byte {
	hdr := make([]byte, jobHeaderSize)
	hdr[0] = byte(OpJobHeader)
	hdr[1] = 0x00
	hdr[2] = jobHeaderSize

	packetCount := p.TotalSize/4094 + 1
	binary.BigEndian.PutUint16(hdr[3:5], uint16(packetCount)) //nolint:gosec // bounded by work area
	hdr[5] = 0x01

	binary.BigEndian.PutUint16(hdr[6:8], p.RasterW)
	binary.BigEndian.PutUint16(hdr[8:10], p.RasterH)
	binary.BigEndian.PutUint16(hdr[10:12], 33)
	binary.BigEndian.PutUint16(hdr[12:14], p.RasterPower)
	binary.BigEndian.PutUint16(hdr[14:16], p.RasterDepth)
	binary.BigEndian.PutUint16(hdr[16:18], p.VectorW)
	binary.BigEndian.PutUint16(hdr[18:20], p.VectorH)
	binary.BigEndian.PutUint32(hdr[20:24], p.TotalSize)
	binary.BigEndian.PutUint16(hdr[24:26], p.VectorPower)
	binary.BigEndian.PutUint16(hdr[26:28], p.VectorDepth)
	binary.BigEndian.PutUint32(hdr[28:32], p.PointCount)
	binary.BigEndian.PutUint16(hdr[32:34], p.CenterX)
	binary.BigEndian.PutUint16(hdr[34:36], p.CenterY)
	hdr[36] = p.Quality
	hdr[37] = 0x00

	return hdr
}

// BuildRasterJobHeader builds a JOB_HEADER for a raster-only burn, deriving
// TotalSize from the dimensions. centerX/centerY of 0 select the documented
// defaults (width/2 + 67 and 760 respectively).
func BuildRasterJobHeader(width, height, power, depth, centerX, centerY int) []byte {
	bytesPerLine := (width + 7) / 8
	totalSize := bytesPerLine * height

	if centerX == 0 {
		centerX = DefaultCenterX(width)
	}
	if centerY == 0 {
		centerY = DefaultBurnCenterY
	}

	return BuildJobHeader(JobParams{
		RasterW:     uint16(width),     //nolint:gosec // validated against work area upstream
		RasterH:     uint16(height),    //nolint:gosec
		RasterPower: uint16(power),     //nolint:gosec
		RasterDepth: uint16(depth),     //nolint:gosec
		TotalSize:   uint32(totalSize), //nolint:gosec
		CenterX:     uint16(centerX),   //nolint:gosec
		CenterY:     uint16(centerY),   //nolint:gosec
		Quality:     1,
	})
}

// ParseJobHeader recovers the spatial envelope from a JOB_HEADER payload.
// Returns false if the payload is not a plausible JOB_HEADER frame.
func ParseJobHeader(payload []byte) (Bounds, bool) {
	if len(payload) < 36 || payload[0] != byte(OpJobHeader) {
		return Bounds{}, false
	}

	width := int(binary.BigEndian.Uint16(payload[6:8]))
	height := int(binary.BigEndian.Uint16(payload[8:10]))
	centerX := int(binary.BigEndian.Uint16(payload[32:34]))
	centerY := int(binary.BigEndian.Uint16(payload[34:36]))

	return Bounds{
		Width:   width,
		Height:  height,
		CenterX: centerX,
		CenterY: centerY,
		MinX:    centerX - width/2,
		MaxX:    centerX + width/2,
		MinY:    centerY - height/2,
		MaxY:    centerY + height/2,
	}, true
}

// BuildBoundsPacket builds the BOUNDS (0x20) preview frame: an image-free
// rectangle command used for fast visual positioning without firing the
// laser.
//
// Layout (11 bytes):
//
//	[0x20][0x00][0x0B][W_be16][H_be16][X_be16][Y_be16]
//
// centerX/centerY of 0 select the defaults width/2+67 and height/2.
func BuildBoundsPacket(width, height, centerX, centerY int) []byte {
	if centerX == 0 {
		centerX = DefaultCenterX(width)
	}
	if centerY == 0 {
		centerY = height / 2
	}

	pkt := make([]byte, 11)
	pkt[0] = byte(OpBounds)
	pkt[1] = 0x00
	pkt[2] = 0x0B
	binary.BigEndian.PutUint16(pkt[3:5], uint16(width))    //nolint:gosec
	binary.BigEndian.PutUint16(pkt[5:7], uint16(height))   //nolint:gosec
	binary.BigEndian.PutUint16(pkt[7:9], uint16(centerX))  //nolint:gosec
	binary.BigEndian.PutUint16(pkt[9:11], uint16(centerY)) //nolint:gosec

	return pkt
}

// BuildFixedCommand builds the common 4-byte frame [opcode, 0x00, 0x04, 0x00]
// used by CONNECT, HOME, STOP, FRAMING, VERSION and the crosshair toggles.
func BuildFixedCommand(op Opcode) []byte {
	return []byte{byte(op), 0x00, 0x04, 0x00}
}

// BuildInit builds the 11-byte INIT (0x24) frame that arms the burn after
// the raster transfer.
func BuildInit() []byte {
	pkt := make([]byte, 11)
	pkt[0] = byte(OpInit)
	pkt[1] = 0x00
	pkt[2] = 0x0B
	return pkt
}

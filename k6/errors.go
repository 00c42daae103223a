package k6

import "errors"

// Sentinel errors for the K6 protocol.
//
// ErrTimeout means no response bytes arrived before the deadline; the caller
// may retry the whole operation. ErrDevice means a response arrived but
// failed semantic validation (missing expected ACK, or the chunk retry
// budget was exhausted). Input validation errors and transport I/O errors
// are distinct; the latter propagate wrapped but unclassified.
var (
	ErrTimeout = errors.New("k6: timeout waiting for device response")
	ErrDevice  = errors.New("k6: device error")

	// Input validation errors.
	ErrImageTooLarge   = errors.New("k6: image exceeds work area")
	ErrOutOfWorkArea   = errors.New("k6: target outside work area")
	ErrPayloadTooLarge = errors.New("k6: data payload exceeds chunk size")
	ErrScanlineLength  = errors.New("k6: scanline length inconsistent with declared width")
	ErrInvalidHex      = errors.New("k6: malformed hex payload")

	// Session state errors.
	ErrNotConnected = errors.New("k6: session is not connected")
)

// Package transport provides the byte-level I/O abstraction used by the K6
// protocol stack: a real serial-port implementation and a deterministic
// in-memory mock for tests and hardware-free runs.
//
// The transport has no protocol knowledge. It moves bytes, applies read
// timeouts, and manages port buffers; everything above it lives in the k6
// package.
package transport

import "time"

// Transport is the byte-level read/write contract for a K6 device link.
//
// Read fills p with up to len(p) bytes and returns the number read. A read
// that times out returns (0, nil); callers distinguish "no data yet" from
// hard I/O errors by the error value.
type Transport interface {
	// Write writes all of p to the device and returns the number of bytes written.
	Write(p []byte) (int, error)
	// Read reads up to len(p) bytes, blocking at most the configured timeout.
	// Returns (0, nil) when the timeout elapses with no data.
	Read(p []byte) (int, error)
	// SetTimeout sets the read timeout applied to subsequent Read calls.
	SetTimeout(d time.Duration) error
	// ResetInputBuffer discards any unread received bytes.
	ResetInputBuffer() error
	// ResetOutputBuffer discards any unsent queued bytes.
	ResetOutputBuffer() error
	// Close releases the underlying port. Further calls fail.
	Close() error
}

package transport

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by mock operations after Close.
var ErrClosed = errors.New("transport: mock transport closed")

// Device reply bytes synthesized by the mock in auto-respond mode. They
// mirror the frames observed from real K6 hardware.
var (
	mockACK        = []byte{0x09}
	mockHeartbeat  = []byte{0xFF, 0xFF, 0xFF, 0xFE}
	mockStatusZero = []byte{0xFF, 0xFF, 0x00, 0x00}
	mockStatusDone = []byte{0xFF, 0xFF, 0x00, 0x64}
)

// MockTransport is a deterministic in-memory Transport for tests.
//
// Responses can be queued explicitly with QueueResponse, or synthesized
// opcode-by-opcode in auto-respond mode, mirroring real device ACK/heartbeat
// behavior so higher layers can run a full engrave without hardware.
//
// Reads are non-blocking: an empty response queue returns (0, nil)
// immediately, the same shape a serial read timeout produces.
type MockTransport struct {
	mu      sync.Mutex
	resp    []byte
	writes  [][]byte
	auto    bool
	version [3]byte
	timeout time.Duration
	closed  bool
}

var _ Transport = (*MockTransport)(nil)

// NewMockTransport creates a mock with no queued responses and
// auto-respond disabled.
func NewMockTransport() *MockTransport {
	return &MockTransport{timeout: time.Second}
}

// EnableAutoRespond turns on opcode-keyed response synthesis. version is
// the three-byte firmware version returned for VERSION queries.
func (m *MockTransport) EnableAutoRespond(version [3]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.auto = true
	m.version = version
}

// QueueResponse appends bytes to the read queue.
func (m *MockTransport) QueueResponse(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resp = append(m.resp, data...)
}

// Writes returns a copy of every Write call observed, in order.
func (m *MockTransport) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]byte, len(m.writes))
	for i, w := range m.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// WriteOpcodes returns the first byte of every observed write, in order.
// Useful for asserting command ordering on the wire.
func (m *MockTransport) WriteOpcodes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]byte, 0, len(m.writes))
	for _, w := range m.writes {
		if len(w) > 0 {
			out = append(out, w[0])
		}
	}
	return out
}

func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	m.writes = append(m.writes, append([]byte(nil), p...))

	if m.auto && len(p) > 0 {
		m.autoRespond(p[0])
	}

	return len(p), nil
}

// autoRespond queues the reply a real device produces for the given opcode.
// Caller must hold m.mu.
func (m *MockTransport) autoRespond(opcode byte) {
	switch opcode {
	case 0xFF: // VERSION: three version bytes, no ACK
		m.resp = append(m.resp, m.version[:]...)
	case 0x23: // JOB_HEADER: the ACK arrives lazily, riding on a heartbeat
		m.resp = append(m.resp, mockACK...)
		m.resp = append(m.resp, mockHeartbeat...)
	case 0x24: // INIT: ACK then an immediate status ramp to 100%
		m.resp = append(m.resp, mockACK...)
		m.resp = append(m.resp, mockStatusZero...)
		m.resp = append(m.resp, mockStatusDone...)
	case 0x16: // STOP: the device stays silent; the driver never reads it
	case 0x0A, 0x17, 0x20, 0x21, 0x22, 0x25, 0x28, 0x06, 0x07:
		m.resp = append(m.resp, mockACK...)
	default:
		m.resp = append(m.resp, mockHeartbeat...)
	}
}

func (m *MockTransport) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	if len(m.resp) == 0 || len(p) == 0 {
		return 0, nil
	}

	n := copy(p, m.resp)
	m.resp = m.resp[n:]
	return n, nil
}

func (m *MockTransport) SetTimeout(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.timeout = d
	return nil
}

func (m *MockTransport) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resp = nil
	return nil
}

func (m *MockTransport) ResetOutputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes = nil
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.resp = nil
	return nil
}

package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the K6 factory baud rate.
const DefaultBaudRate = 115200

// DefaultReadTimeout is applied to a freshly opened port until the session
// overrides it per command.
const DefaultReadTimeout = 2 * time.Second

// SerialTransport is a Transport over a physical serial port.
type SerialTransport struct {
	port serial.Port
	name string
}

var _ Transport = (*SerialTransport)(nil)

// OpenSerial opens the named serial port (e.g. /dev/ttyUSB0) in 8N1 mode at
// the given baud rate. A baud of 0 selects DefaultBaudRate.
func OpenSerial(name string, baud int) (*SerialTransport, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", name, err)
	}

	if err := port.SetReadTimeout(DefaultReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("transport: set read timeout on %s: %w", name, err)
	}

	return &SerialTransport{port: port, name: name}, nil
}

// Name returns the port name the transport was opened with.
func (t *SerialTransport) Name() string { return t.name }

func (t *SerialTransport) Write(p []byte) (int, error) {
	n, err := t.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("transport: write %s: %w", t.name, err)
	}
	return n, nil
}

func (t *SerialTransport) Read(p []byte) (int, error) {
	// go.bug.st/serial returns (0, nil) on read timeout, which matches the
	// Transport contract directly.
	n, err := t.port.Read(p)
	if err != nil {
		return n, fmt.Errorf("transport: read %s: %w", t.name, err)
	}
	return n, nil
}

func (t *SerialTransport) SetTimeout(d time.Duration) error {
	if err := t.port.SetReadTimeout(d); err != nil {
		return fmt.Errorf("transport: set read timeout on %s: %w", t.name, err)
	}
	return nil
}

func (t *SerialTransport) ResetInputBuffer() error {
	return t.port.ResetInputBuffer()
}

func (t *SerialTransport) ResetOutputBuffer() error {
	return t.port.ResetOutputBuffer()
}

func (t *SerialTransport) Close() error {
	return t.port.Close()
}

package audit

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// responseNames maps well-known single response opcodes to a short label in
// the text dump.
var responseNames = map[byte]string{
	0x09: "ACK",
	0x08: "ERROR",
	0x04: "HEARTBEAT",
	0x05: "STATUS",
}

// ByteDumpLogger captures all serial I/O without filtering or validation,
// tee-style. It writes two files:
//
//   - {base}.dump: binary dump framed as ">>> SEND <bytes>\n" / "<<< RECV <bytes>\n"
//   - {base}.dump.txt: human-readable hex/decimal twin
//
// Used for protocol debugging and replay, not required for normal operation.
type ByteDumpLogger struct {
	mu sync.Mutex

	binFile  *os.File
	textFile *os.File
}

// NewByteDumpLogger creates {base}.dump and {base}.dump.txt.
func NewByteDumpLogger(base string) (*ByteDumpLogger, error) {
	binFile, err := os.Create(base + ".dump")
	if err != nil {
		return nil, fmt.Errorf("audit: create byte dump: %w", err)
	}

	textFile, err := os.Create(base + ".dump.txt")
	if err != nil {
		_ = binFile.Close()
		return nil, fmt.Errorf("audit: create byte dump text: %w", err)
	}

	l := &ByteDumpLogger{binFile: binFile, textFile: textFile}

	fmt.Fprintf(textFile, "K6 Serial I/O Dump - %s\n", isoTimestamp())
	fmt.Fprintf(textFile, "%s\n\n", strings.Repeat("=", 70))
	_ = textFile.Sync()

	return l, nil
}

func isoTimestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// LogSend records outgoing bytes with an optional description.
func (l *ByteDumpLogger) LogSend(data []byte, description string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, _ = l.binFile.Write([]byte(">>> SEND "))
	_, _ = l.binFile.Write(data)
	_, _ = l.binFile.Write([]byte("\n"))

	fmt.Fprintf(l.textFile, "[%s] SEND (%d bytes)", isoTimestamp(), len(data))
	if description != "" {
		fmt.Fprintf(l.textFile, ": %s", description)
	}
	fmt.Fprintln(l.textFile)
	l.writeHexDec(data)
	fmt.Fprintln(l.textFile)
}

// LogRecv records incoming bytes. Empty reads are not logged.
func (l *ByteDumpLogger) LogRecv(data []byte) {
	if len(data) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, _ = l.binFile.Write([]byte("<<< RECV "))
	_, _ = l.binFile.Write(data)
	_, _ = l.binFile.Write([]byte("\n"))

	fmt.Fprintf(l.textFile, "[%s] RECV (%d bytes)\n", isoTimestamp(), len(data))
	l.writeHexDec(data)

	if name, ok := responseNames[data[0]]; ok {
		fmt.Fprintf(l.textFile, "  -> %s\n", name)
	}
	fmt.Fprintln(l.textFile)
}

// LogError records a free-form error line in the text dump.
func (l *ByteDumpLogger) LogError(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.textFile, "[%s] ERROR: %s\n\n", isoTimestamp(), message)
}

// writeHexDec emits the hex and decimal views, 16 bytes per line.
// Caller must hold l.mu.
func (l *ByteDumpLogger) writeHexDec(data []byte) {
	fmt.Fprint(l.textFile, "  HEX: ")
	for i, b := range data {
		fmt.Fprintf(l.textFile, "%02x ", b)
		if (i+1)%16 == 0 && i < len(data)-1 {
			fmt.Fprint(l.textFile, "\n       ")
		}
	}
	fmt.Fprintln(l.textFile)

	fmt.Fprint(l.textFile, "  DEC: ")
	for i, b := range data {
		fmt.Fprintf(l.textFile, "%3d ", b)
		if (i+1)%16 == 0 && i < len(data)-1 {
			fmt.Fprint(l.textFile, "\n       ")
		}
	}
	fmt.Fprintln(l.textFile)
}

// Close writes the text footer and closes both files.
func (l *ByteDumpLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.textFile, "\nLog closed: %s\n", isoTimestamp())

	binErr := l.binFile.Close()
	textErr := l.textFile.Close()
	if binErr != nil {
		return binErr
	}
	return textErr
}

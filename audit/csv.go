// Package audit provides the two optional log sinks of the K6 driver: a CSV
// audit log with one row per protocol operation, and a raw byte dump of all
// serial I/O for protocol reverse-engineering and replay.
package audit

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"
)

// csvColumns is the audit log header. Downstream analysis tooling depends on
// this exact column order; never reorder or rename.
var csvColumns = []string{
	"burn_start",
	"timestamp",
	"elapsed_s",
	"phase",
	"operation",
	"duration_ms",
	"bytes_transferred",
	"cumulative_bytes",
	"throughput_kbps",
	"status_pct",
	"state",
	"response_type",
	"retry_count",
	"device_state",
}

// NoStatus marks a Record that carries no progress percentage; the column is
// left blank in the CSV row.
const NoStatus = -1

// Record describes a single protocol operation for the audit log.
type Record struct {
	Phase        string
	Operation    string
	Duration     time.Duration
	Bytes        int
	StatusPct    int // NoStatus when not applicable
	State        string
	ResponseType string
	RetryCount   int
	DeviceState  string
}

// CSVLogger writes protocol operations to a CSV file, one flushed row per
// operation so the log survives crashes mid-burn.
type CSVLogger struct {
	mu sync.Mutex

	file   *os.File
	writer *csv.Writer

	start           time.Time
	burnStart       string
	cumulativeBytes int64
}

// NewCSVLogger creates (or truncates) the CSV file at path and writes the
// header row.
func NewCSVLogger(path string) (*CSVLogger, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("audit: create csv log: %w", err)
	}

	l := &CSVLogger{
		file:   file,
		writer: csv.NewWriter(file),
		start:  time.Now(),
	}
	l.burnStart = l.start.Format("2006-01-02 15:04:05")

	if err := l.writer.Write(csvColumns); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("audit: write csv header: %w", err)
	}
	l.writer.Flush()

	return l, nil
}

// LogOperation appends one row and flushes it.
func (l *CSVLogger) LogOperation(rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.State == "" {
		rec.State = "ACTIVE"
	}
	if rec.DeviceState == "" {
		rec.DeviceState = "IDLE"
	}

	l.cumulativeBytes += int64(rec.Bytes)

	durationMS := float64(rec.Duration) / float64(time.Millisecond)
	throughputKBPS := 0.0
	if durationMS > 0 {
		throughputKBPS = (float64(rec.Bytes) / 1024) / (durationMS / 1000)
	}

	statusPct := ""
	if rec.StatusPct != NoStatus {
		statusPct = fmt.Sprintf("%d", rec.StatusPct)
	}

	row := []string{
		l.burnStart,
		time.Now().Format("2006-01-02 15:04:05.000"),
		fmt.Sprintf("%.3f", time.Since(l.start).Seconds()),
		rec.Phase,
		rec.Operation,
		fmt.Sprintf("%.0f", durationMS),
		fmt.Sprintf("%d", rec.Bytes),
		fmt.Sprintf("%d", l.cumulativeBytes),
		fmt.Sprintf("%.2f", throughputKBPS),
		statusPct,
		rec.State,
		rec.ResponseType,
		fmt.Sprintf("%d", rec.RetryCount),
		rec.DeviceState,
	}

	_ = l.writer.Write(row)
	l.writer.Flush()
}

// Close flushes and closes the underlying file.
func (l *CSVLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writer.Flush()
	return l.file.Close()
}

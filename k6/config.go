package k6

import (
	"errors"
	"time"

	"github.com/openlaser/go-k6/audit"
	"github.com/openlaser/go-k6/logger"
)

// Default session tuning values, matching the vendor application's observed
// behavior.
const (
	DefaultChunkRetryLimit = 3
	DefaultRetryBackoff    = 100 * time.Millisecond
	DefaultIdleTimeout     = 90 * time.Second
	DefaultMaxWait         = 10 * time.Minute
	DefaultPollInterval    = 100 * time.Millisecond
)

// MaxChunkRetryLimit bounds the per-chunk retry budget.
const MaxChunkRetryLimit = 10

// AuditSink receives one structured record per protocol operation. The
// audit.CSVLogger implements it; a nil sink disables auditing.
type AuditSink interface {
	LogOperation(rec audit.Record)
}

// ByteSink receives every raw frame crossing the wire. The
// audit.ByteDumpLogger implements it.
type ByteSink interface {
	LogSend(data []byte, label string)
	LogRecv(data []byte)
	LogError(msg string)
}

// SessionConfig holds all tuning for a protocol session.
type SessionConfig struct {
	// chunkRetryLimit is the max number of resends per DATA chunk.
	chunkRetryLimit int

	// retryBackoff is the base delay before the first resend; each further
	// attempt doubles it.
	retryBackoff time.Duration

	// chunkTimeout is the per-attempt ACK wait for a DATA chunk.
	chunkTimeout time.Duration

	// idleTimeout aborts the completion wait after this long with no bytes
	// from the device.
	idleTimeout time.Duration

	// maxWait is the hard ceiling on the completion wait.
	maxWait time.Duration

	// pollInterval paces the completion watcher's read loop.
	pollInterval time.Duration

	auditSink AuditSink
	byteSink  ByteSink
	logger    logger.Logger
}

// NewSessionConfig creates a session configuration with defaults, then
// applies opts in order; see the With* functions.
func NewSessionConfig(opts ...SessionOption) (*SessionConfig, error) {
	cfg := &SessionConfig{
		chunkRetryLimit: DefaultChunkRetryLimit,
		retryBackoff:    DefaultRetryBackoff,
		chunkTimeout:    DefaultDataTimeout,
		idleTimeout:     DefaultIdleTimeout,
		maxWait:         DefaultMaxWait,
		pollInterval:    DefaultPollInterval,
		logger:          logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// ChunkRetryLimit returns the max number of resends per DATA chunk.
func (cfg *SessionConfig) ChunkRetryLimit() int { return cfg.chunkRetryLimit }

// RetryBackoff returns the base resend delay.
func (cfg *SessionConfig) RetryBackoff() time.Duration { return cfg.retryBackoff }

// ChunkTimeout returns the per-attempt ACK wait for a DATA chunk.
func (cfg *SessionConfig) ChunkTimeout() time.Duration { return cfg.chunkTimeout }

// IdleTimeout returns the silent-device abort threshold of the completion wait.
func (cfg *SessionConfig) IdleTimeout() time.Duration { return cfg.idleTimeout }

// MaxWait returns the hard ceiling of the completion wait.
func (cfg *SessionConfig) MaxWait() time.Duration { return cfg.maxWait }

// PollInterval returns the completion watcher's read pacing.
func (cfg *SessionConfig) PollInterval() time.Duration { return cfg.pollInterval }

// GetLogger returns the configured logger.
func (cfg *SessionConfig) GetLogger() logger.Logger { return cfg.logger }

// --- SessionOption ---

// SessionOption is a functional option for configuring a SessionConfig.
type SessionOption interface {
	apply(*SessionConfig) error
}

type sessionOptFunc func(*SessionConfig) error

func (f sessionOptFunc) apply(cfg *SessionConfig) error { return f(cfg) }

// WithChunkRetryLimit sets the max number of attempts per DATA chunk.
// Must be in [1, 10].
func WithChunkRetryLimit(n int) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if n < 1 || n > MaxChunkRetryLimit {
			return errors.New("k6: chunk retry limit out of range [1, 10]")
		}
		cfg.chunkRetryLimit = n

		return nil
	})
}

// WithRetryBackoff sets the base delay before the first chunk resend.
func WithRetryBackoff(d time.Duration) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if d < 0 {
			return errors.New("k6: retry backoff must not be negative")
		}
		cfg.retryBackoff = d

		return nil
	})
}

// WithChunkTimeout sets the per-attempt ACK wait for a DATA chunk.
func WithChunkTimeout(d time.Duration) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if d <= 0 {
			return errors.New("k6: chunk timeout must be positive")
		}
		cfg.chunkTimeout = d

		return nil
	})
}

// WithIdleTimeout sets how long the completion wait tolerates a silent device.
func WithIdleTimeout(d time.Duration) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if d <= 0 {
			return errors.New("k6: idle timeout must be positive")
		}
		cfg.idleTimeout = d

		return nil
	})
}

// WithMaxWait sets the hard ceiling on the completion wait.
func WithMaxWait(d time.Duration) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if d <= 0 {
			return errors.New("k6: max wait must be positive")
		}
		cfg.maxWait = d

		return nil
	})
}

// WithPollInterval sets the completion watcher's read pacing.
func WithPollInterval(d time.Duration) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if d <= 0 {
			return errors.New("k6: poll interval must be positive")
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithAuditSink attaches a per-operation audit sink.
func WithAuditSink(sink AuditSink) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		cfg.auditSink = sink

		return nil
	})
}

// WithByteSink attaches a raw byte-dump sink.
func WithByteSink(sink ByteSink) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		cfg.byteSink = sink

		return nil
	})
}

// WithLogger sets the logger for the session.
func WithLogger(l logger.Logger) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if l == nil {
			return errors.New("k6: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

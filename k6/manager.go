package k6

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/openlaser/go-k6/transport"
)

// SessionManager tracks sessions keyed by port name, at most one session per
// port. It is safe for concurrent use; callers that share a manager across
// goroutines get the single-owner guarantee for each serial device.
type SessionManager struct {
	sessions *xsync.MapOf[string, *Session]
}

// NewSessionManager creates an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: xsync.NewMapOf[string, *Session]()}
}

// Open opens the serial port at name and registers a new session over it.
// Fails if a session for that port already exists.
func (m *SessionManager) Open(name string, baud int, opts ...SessionOption) (*Session, error) {
	cfg, err := NewSessionConfig(opts...)
	if err != nil {
		return nil, err
	}

	var openErr error
	session, _ := m.sessions.Compute(name, func(old *Session, loaded bool) (*Session, bool) {
		if loaded {
			openErr = fmt.Errorf("k6: session for %s already open", name)
			return old, false
		}

		tr, err := transport.OpenSerial(name, baud)
		if err != nil {
			openErr = err
			return nil, true // do not store
		}

		return NewSession(tr, cfg), false
	})
	if openErr != nil {
		return nil, openErr
	}

	return session, nil
}

// Register adds an externally constructed session (e.g. over a mock
// transport) under name. Fails if the name is taken.
func (m *SessionManager) Register(name string, s *Session) error {
	if _, loaded := m.sessions.LoadOrStore(name, s); loaded {
		return fmt.Errorf("k6: session for %s already open", name)
	}

	return nil
}

// Get returns the session registered under name.
func (m *SessionManager) Get(name string) (*Session, bool) {
	return m.sessions.Load(name)
}

// Close closes and removes the session registered under name.
func (m *SessionManager) Close(name string) error {
	s, loaded := m.sessions.LoadAndDelete(name)
	if !loaded {
		return fmt.Errorf("k6: no session for %s", name)
	}

	return s.Close()
}

// CloseAll closes every registered session, returning the first error.
func (m *SessionManager) CloseAll() error {
	var firstErr error
	m.sessions.Range(func(name string, s *Session) bool {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.sessions.Delete(name)

		return true
	})

	return firstErr
}

// Names returns the port names of all registered sessions.
func (m *SessionManager) Names() []string {
	var names []string
	m.sessions.Range(func(name string, _ *Session) bool {
		names = append(names, name)

		return true
	})

	return names
}

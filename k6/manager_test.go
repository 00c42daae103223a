package k6

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManager_RegisterAndGet(t *testing.T) {
	m := NewSessionManager()
	s, _ := newTestSession(t)

	require.NoError(t, m.Register("/dev/ttyUSB0", s))

	got, ok := m.Get("/dev/ttyUSB0")
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = m.Get("/dev/ttyUSB1")
	assert.False(t, ok)
}

func TestSessionManager_DuplicateRegister(t *testing.T) {
	m := NewSessionManager()
	s1, _ := newTestSession(t)
	s2, _ := newTestSession(t)

	require.NoError(t, m.Register("/dev/ttyUSB0", s1))
	err := m.Register("/dev/ttyUSB0", s2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already open")

	got, _ := m.Get("/dev/ttyUSB0")
	assert.Same(t, s1, got)
}

func TestSessionManager_Close(t *testing.T) {
	m := NewSessionManager()
	s, _ := newTestSession(t)
	require.NoError(t, m.Register("/dev/ttyUSB0", s))

	require.NoError(t, m.Close("/dev/ttyUSB0"))
	_, ok := m.Get("/dev/ttyUSB0")
	assert.False(t, ok)

	assert.Error(t, m.Close("/dev/ttyUSB0"))
}

func TestSessionManager_CloseAll(t *testing.T) {
	m := NewSessionManager()
	s1, _ := newTestSession(t)
	s2, _ := newTestSession(t)
	require.NoError(t, m.Register("a", s1))
	require.NoError(t, m.Register("b", s2))

	assert.ElementsMatch(t, []string{"a", "b"}, m.Names())
	require.NoError(t, m.CloseAll())
	assert.Empty(t, m.Names())
}

package link

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_CreateSessionIsLookupable(t *testing.T) {
	mgr := NewManager()
	session, err := mgr.CreateSession("wss://example.test/ws")
	require.NoError(t, err)

	found, ok := mgr.Lookup(string(session.Code))
	require.True(t, ok)
	assert.Equal(t, session.Code, found.Code)
}

func TestManager_LookupFailsForUnknownCode(t *testing.T) {
	mgr := NewManager()
	_, ok := mgr.Lookup("ZZZZZZ")
	assert.False(t, ok)
}

func TestManager_LookupFailsForExpiredSession(t *testing.T) {
	mgr := NewManager()
	session, err := mgr.CreateSession("wss://example.test/ws")
	require.NoError(t, err)

	mgr.mu.Lock()
	mgr.sessions[session.Code].ExpiresAt = time.Now().Add(-time.Second)
	mgr.mu.Unlock()

	_, ok := mgr.Lookup(string(session.Code))
	assert.False(t, ok)
}

func TestManager_CancelEvictsSession(t *testing.T) {
	mgr := NewManager()
	session, err := mgr.CreateSession("wss://example.test/ws")
	require.NoError(t, err)

	mgr.Cancel(session.Code)

	_, ok := mgr.Lookup(string(session.Code))
	assert.False(t, ok)
}

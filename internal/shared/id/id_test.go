package id

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionID(t *testing.T) {
	sid := NewSessionID()

	assert.True(t, strings.HasPrefix(sid.String(), "sess_"))
	assert.True(t, IsValid(sid.String(), SessionPrefix))
	assert.False(t, IsValid(sid.String(), RequestPrefix))
}

func TestUniqueness(t *testing.T) {
	seen := make(map[SessionID]bool)
	for i := 0; i < 1000; i++ {
		sid := NewSessionID()
		require.False(t, seen[sid], "duplicate session ID %s", sid)
		seen[sid] = true
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	sid := NewSessionID()
	after := time.Now().Add(time.Second)

	ts, err := Timestamp(sid.String())
	require.NoError(t, err)
	assert.True(t, ts.After(before) && ts.Before(after))
}

func TestTimestampRejectsGarbage(t *testing.T) {
	_, err := Timestamp("sess_not-a-ulid")
	assert.Error(t, err)
}

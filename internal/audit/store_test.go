package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, retention int) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "audit", "audit.db"), retention)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_WriteRecent(t *testing.T) {
	s := newStore(t, 0)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Write(Event{Timestamp: base, Action: "start", Resource: "station", Peer: "uid=0 pid=42"}))
	require.NoError(t, s.Write(Event{
		Timestamp: base.Add(time.Minute),
		Action:    "command",
		Resource:  "SCAN",
		Error:     "not connected",
		Codes:     []string{"not_connected"},
	}))

	events, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "command", events[0].Action)
	assert.Equal(t, "SCAN", events[0].Resource)
	assert.False(t, events[0].OK())
	assert.Equal(t, []string{"not_connected"}, events[0].Codes)
	assert.True(t, events[0].Timestamp.Equal(base.Add(time.Minute)))

	assert.Equal(t, "start", events[1].Action)
	assert.Equal(t, "uid=0 pid=42", events[1].Peer)
	assert.True(t, events[1].OK())
	assert.Nil(t, events[1].Codes)

	events, err = s.Recent(1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestStore_WriteStampsTime(t *testing.T) {
	s := newStore(t, 0)
	before := time.Now().Add(-time.Second)

	require.NoError(t, s.Write(Event{Action: "connect"}))

	events, err := s.Recent(1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Timestamp.After(before))
}

func TestStore_Query(t *testing.T) {
	s := newStore(t, 0)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, action := range []string{"start", "stop", "start", "driver_load"} {
		require.NoError(t, s.Write(Event{Timestamp: base.Add(time.Duration(i) * time.Hour), Action: action}))
	}

	events, err := s.Query(time.Time{}, time.Time{}, "start", 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = s.Query(base.Add(time.Hour), base.Add(2*time.Hour), "", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "start", events[0].Action)
	assert.Equal(t, "stop", events[1].Action)
}

func TestStore_Prune(t *testing.T) {
	s := newStore(t, 7)
	now := time.Now()

	require.NoError(t, s.Write(Event{Timestamp: now.AddDate(0, 0, -30), Action: "start"}))
	require.NoError(t, s.Write(Event{Timestamp: now.AddDate(0, 0, -8), Action: "stop"}))
	require.NoError(t, s.Write(Event{Timestamp: now.Add(-time.Hour), Action: "connect"}))

	n, err := s.Prune()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := NewStore(path, 0)
	require.NoError(t, err)
	require.NoError(t, s.Write(Event{Action: "start", Resource: "ap"}))
	require.NoError(t, s.Close())

	s, err = NewStore(path, 0)
	require.NoError(t, err)
	defer s.Close()

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

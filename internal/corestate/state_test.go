package corestate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestOpen_EmptyDataDirYieldsZeroValueStore(t *testing.T) {
	s := openTestStore(t)
	assert.Empty(t, s.RegisteredGroups())
	assert.Equal(t, int64(0), s.LastTimestamp())
	assert.Equal(t, int64(0), s.AgentTimestamp(1))
	_, ok := s.Session("main")
	assert.False(t, ok)
}

func TestRegisterGroup_AddsAndOverwrites(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RegisterGroup(RegisteredGroup{ChatID: 1, Name: "a", Folder: "f1", Trigger: "!ops"}))
	require.NoError(t, s.RegisterGroup(RegisteredGroup{ChatID: 1, Name: "a-renamed", Folder: "f1", Trigger: "!ops"}))

	groups := s.RegisteredGroups()
	require.Len(t, groups, 1)
	assert.Equal(t, "a-renamed", groups[1].Name)
}

func TestLookupGroupByFolder_FindsRegisteredAndMissesUnknown(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RegisterGroup(RegisteredGroup{ChatID: 42, Folder: "team-ops"}))

	g, ok := s.LookupGroupByFolder("team-ops")
	require.True(t, ok)
	assert.Equal(t, int64(42), g.ChatID)

	_, ok = s.LookupGroupByFolder("no-such-folder")
	assert.False(t, ok)
}

func TestAdvanceLastTimestamp_OnlyMovesForward(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.AdvanceLastTimestamp(100))
	require.NoError(t, s.AdvanceLastTimestamp(50))
	assert.Equal(t, int64(100), s.LastTimestamp())

	require.NoError(t, s.AdvanceLastTimestamp(200))
	assert.Equal(t, int64(200), s.LastTimestamp())
}

func TestAdvanceAgentTimestamp_IsPerChatAndMonotone(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.AdvanceAgentTimestamp(1, 10))
	require.NoError(t, s.AdvanceAgentTimestamp(2, 5))
	require.NoError(t, s.AdvanceAgentTimestamp(1, 3))

	assert.Equal(t, int64(10), s.AgentTimestamp(1))
	assert.Equal(t, int64(5), s.AgentTimestamp(2))
}

func TestSetSession_RoundTripsPerGroupFolder(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SetSession("main", "sess-1"))
	require.NoError(t, s.SetSession("other", "sess-2"))

	id, ok := s.Session("main")
	require.True(t, ok)
	assert.Equal(t, "sess-1", id)

	id, ok = s.Session("other")
	require.True(t, ok)
	assert.Equal(t, "sess-2", id)
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.RegisterGroup(RegisteredGroup{ChatID: 7, Folder: "persisted"}))
	require.NoError(t, s.SetSession("persisted", "sess-7"))
	require.NoError(t, s.AdvanceLastTimestamp(999))

	reopened, err := Open(dir)
	require.NoError(t, err)
	g, ok := reopened.LookupGroupByFolder("persisted")
	require.True(t, ok)
	assert.Equal(t, int64(7), g.ChatID)
	id, ok := reopened.Session("persisted")
	require.True(t, ok)
	assert.Equal(t, "sess-7", id)
	assert.Equal(t, int64(999), reopened.LastTimestamp())
}

package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)
	return m
}

func TestNewManagerCreatesStorageDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "sessions")
	_, err := NewManager(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewManagerRequiresPath(t *testing.T) {
	_, err := NewManager("")
	require.Error(t, err)
}

func TestCurrentIsStable(t *testing.T) {
	m := newTestManager(t)
	id := m.Current()
	assert.NotEmpty(t, id)
	assert.Equal(t, id, m.Current())
	require.NoError(t, ValidateSessionID(id))
}

func TestSetCurrent(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.SetCurrent("work-session"))
	assert.Equal(t, "work-session", m.Current())

	require.Error(t, m.SetCurrent("bad/../id"))
	require.Error(t, m.SetCurrent(""))
}

func TestAppendAndReplay(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Append(Event{Type: EventMemorySaved, SessionID: "s1", MemoryID: "m1"}))
	require.NoError(t, m.Append(Event{Type: EventSearch, SessionID: "s1", Detail: map[string]any{"query": "auth"}}))
	require.NoError(t, m.Append(Event{Type: EventMemorySaved, SessionID: "s2", MemoryID: "m2"}))

	events, err := m.Events("s1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventMemorySaved, events[0].Type)
	assert.Equal(t, "m1", events[0].MemoryID)
	assert.Equal(t, EventSearch, events[1].Type)
	assert.Equal(t, "auth", events[1].Detail["query"])
	assert.False(t, events[0].At.IsZero())
}

func TestAppendDefaultsToCurrentSession(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.SetCurrent("default-session"))

	require.NoError(t, m.Append(Event{Type: EventIngest}))

	events, err := m.Events("default-session")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "default-session", events[0].SessionID)
}

func TestEventsUnknownSession(t *testing.T) {
	m := newTestManager(t)
	events, err := m.Events("never-used")
	require.NoError(t, err)
	assert.Nil(t, events)
}

func TestEventsSkipsTornTailLine(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Append(Event{Type: EventMemorySaved, SessionID: "s1", MemoryID: "m1"}))

	f, err := os.OpenFile(m.logPath("s1"), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"memory_saved","sess`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := m.Events("s1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "m1", events[0].MemoryID)
}

func TestListNewestFirst(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Append(Event{Type: EventIngest, SessionID: "old"}))
	older := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(m.logPath("old"), older, older))
	require.NoError(t, m.Append(Event{Type: EventIngest, SessionID: "new"}))

	ids, err := m.List()
	require.NoError(t, err)
	require.Equal(t, []string{"new", "old"}, ids)
}

func TestDelete(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Append(Event{Type: EventIngest, SessionID: "gone"}))

	ok, err := m.Delete("gone")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Delete("gone")
	require.NoError(t, err)
	assert.False(t, ok)

	events, err := m.Events("gone")
	require.NoError(t, err)
	assert.Nil(t, events)
}

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
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	return NewManager(store)
}

func TestManager_SaveLoadRoundTrip(t *testing.T) {
	m := newTestManager(t)

	created := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	sess := &Session{
		ID:        "s1",
		Title:     "Debugging help",
		CreatedAt: created,
		Messages: []Message{
			{Role: RoleUser, Content: "why does my goroutine leak", Timestamp: created},
			{Role: RoleAssistant, Content: "because the channel is never closed", Intent: "explanation",
				Confidence: 0.8, ElapsedTime: 1.2, Timestamp: created.Add(2 * time.Second)},
		},
	}

	require.NoError(t, m.Save(sess))

	loaded, ok, err := m.Load("s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, sess.Title, loaded.Title)
	assert.True(t, sess.CreatedAt.Equal(loaded.CreatedAt))
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, sess.Messages[0].Content, loaded.Messages[0].Content)
	assert.Equal(t, sess.Messages[1].Intent, loaded.Messages[1].Intent)
	assert.Equal(t, sess.Messages[1].ElapsedTime, loaded.Messages[1].ElapsedTime)
	assert.True(t, sess.Messages[1].Timestamp.Equal(loaded.Messages[1].Timestamp))
}

func TestManager_MissingSessionIsAbsent(t *testing.T) {
	m := newTestManager(t)

	_, ok, err := m.Load("nope")

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_MalformedRecordIsAbsent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0644))
	m := NewManager(store)

	_, ok, err := m.Load("broken")

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_DefaultSessionAlwaysExists(t *testing.T) {
	m := newTestManager(t)

	sess, ok, err := m.Load(DefaultSessionID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, DefaultSessionID, sess.ID)

	all, err := m.ListAll()
	require.NoError(t, err)
	assert.Contains(t, all, DefaultSessionID)
}

func TestManager_DeleteFallsBackActiveToDefault(t *testing.T) {
	m := newTestManager(t)

	sess, err := m.Create("scratch")
	require.NoError(t, err)
	require.Equal(t, sess.ID, m.Active())

	require.NoError(t, m.Delete(sess.ID))

	assert.Equal(t, DefaultSessionID, m.Active())
	_, ok, err := m.Load(sess.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_DefaultSessionCannotBeDeleted(t *testing.T) {
	m := newTestManager(t)

	err := m.Delete(DefaultSessionID)

	require.Error(t, err)
}

func TestManager_CleanupRemovesOldSessionsButNeverDefault(t *testing.T) {
	m := newTestManager(t)

	old := &Session{ID: "old", Title: "stale", CreatedAt: time.Now().Add(-40 * 24 * time.Hour)}
	fresh := &Session{ID: "fresh", Title: "recent", CreatedAt: time.Now()}
	defaultSess := &Session{ID: DefaultSessionID, Title: "Default Session", CreatedAt: time.Now().Add(-400 * 24 * time.Hour)}
	require.NoError(t, m.Save(old))
	require.NoError(t, m.Save(fresh))
	require.NoError(t, m.Save(defaultSess))

	removed, err := m.Cleanup(30 * 24 * time.Hour)

	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok, _ := m.Load("old")
	assert.False(t, ok)
	_, ok, _ = m.Load("fresh")
	assert.True(t, ok)
	_, ok, _ = m.Load(DefaultSessionID)
	assert.True(t, ok)
}

func TestManager_AppendMessages(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.Create("notes")
	require.NoError(t, err)

	err = m.AppendMessages(sess.ID,
		Message{Role: RoleUser, Content: "hi", Timestamp: time.Now()},
		Message{Role: RoleAssistant, Content: "hello", Timestamp: time.Now()},
	)
	require.NoError(t, err)

	loaded, ok, err := m.Load(sess.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, loaded.Messages, 2)
}

func TestSession_HistoryPairsMessages(t *testing.T) {
	sess := &Session{
		Messages: []Message{
			{Role: RoleUser, Content: "q1"},
			{Role: RoleAssistant, Content: "a1", Intent: "coding", Confidence: 0.9},
			{Role: RoleAssistant, Content: "orphan"},
			{Role: RoleUser, Content: "q2"},
			{Role: RoleAssistant, Content: "a2"},
		},
	}

	turns := sess.History()

	require.Len(t, turns, 2)
	assert.Equal(t, "q1", turns[0].Query)
	assert.Equal(t, "a1", turns[0].Answer)
	assert.Equal(t, "coding", turns[0].Intent)
	assert.Equal(t, "q2", turns[1].Query)
}

func TestFSStore_AtomicPutLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Put("k", []byte(`{"id":"k"}`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "k.json", entries[0].Name())
}

func TestFSStore_ListKeysIgnoresNonJSON(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put("a", []byte("{}")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.txt"), []byte("x"), 0644))

	keys, err := store.ListKeys()

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-assistant/backend/internal/guardrails"
	"github.com/knowledge-assistant/backend/internal/pipeline"
	"github.com/knowledge-assistant/backend/internal/rerank"
	"github.com/knowledge-assistant/backend/internal/retrieval"
	"github.com/knowledge-assistant/backend/internal/session"
	"github.com/knowledge-assistant/backend/internal/storage/sqlite"
)

type fakeAnswerCache struct {
	store map[string][]byte
}

func newFakeAnswerCache() *fakeAnswerCache {
	return &fakeAnswerCache{store: make(map[string][]byte)}
}

func (f *fakeAnswerCache) GetAnswer(_ context.Context, key string, out interface{}) (bool, error) {
	data, ok := f.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, out)
}

func (f *fakeAnswerCache) SetAnswer(_ context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.store[key] = data
	return nil
}

type stubSearcher struct{}

func (stubSearcher) Search(_ context.Context, _ string, _ int) ([]retrieval.Chunk, error) {
	return nil, nil
}

type stubRanker struct{}

func (stubRanker) Rerank(_ context.Context, _ string, _ []retrieval.Chunk) ([]rerank.ScoredChunk, float64, error) {
	return []rerank.ScoredChunk{}, 0.4, nil
}

func (stubRanker) Fallback(candidates []retrieval.Chunk) []rerank.ScoredChunk {
	out := make([]rerank.ScoredChunk, len(candidates))
	for i, c := range candidates {
		out[i] = rerank.ScoredChunk{Chunk: c}
	}
	return out
}

type stubAnswerer struct{ answer string }

func (s stubAnswerer) Generate(_ context.Context, _ string, _ []rerank.ScoredChunk) string {
	return s.answer
}

func newAskFixture(t *testing.T) (*fiber.App, *session.Manager, *sqlite.Client, *fakeAnswerCache) {
	t.Helper()

	store, err := session.NewFSStore(t.TempDir())
	require.NoError(t, err)
	sessions := session.NewManager(store)

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })

	pipe := pipeline.New(guardrails.New(), stubSearcher{}, stubRanker{}, stubAnswerer{answer: "a lightweight thread"}, 5)
	cache := newFakeAnswerCache()

	app := fiber.New()
	app.Post("/api/v1/ask", NewAskHandler(pipe, sessions, db, cache).HandleAsk)

	return app, sessions, db, cache
}

func postAsk(t *testing.T, app *fiber.App, body string) map[string]interface{} {
	t.Helper()

	req := httptest.NewRequest("POST", "/api/v1/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHandleAsk_RecordsTurnAndInteraction(t *testing.T) {
	app, sessions, db, _ := newAskFixture(t)

	out := postAsk(t, app, `{"query": "what is a goroutine", "session_id": "default"}`)

	assert.Equal(t, "a lightweight thread", out["answer"])
	assert.Nil(t, out["cached"])

	sess, ok, err := sessions.Load(session.DefaultSessionID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, session.RoleUser, sess.Messages[0].Role)
	assert.Equal(t, "what is a goroutine", sess.Messages[0].Content)
	assert.Equal(t, session.RoleAssistant, sess.Messages[1].Role)

	summary, err := db.Summary(1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalInteractions)
}

func TestHandleAsk_CacheHitStillRecordsTurn(t *testing.T) {
	app, sessions, db, cache := newAskFixture(t)

	first := postAsk(t, app, `{"query": "what is a goroutine", "session_id": "default"}`)
	assert.Nil(t, first["cached"])
	require.NotEmpty(t, cache.store, "first answer should populate the cache")

	second := postAsk(t, app, `{"query": "what is a goroutine", "session_id": "default"}`)
	assert.Equal(t, true, second["cached"])
	assert.Equal(t, first["answer"], second["answer"])

	// The repeated turn shows up in both the session history and the log.
	sess, ok, err := sessions.Load(session.DefaultSessionID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, sess.Messages, 4)

	summary, err := db.Summary(1)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalInteractions)
}

func TestHandleAsk_BlockedAnswerIsNotCached(t *testing.T) {
	app, sessions, db, cache := newAskFixture(t)

	out := postAsk(t, app, `{"query": "how to make a bomb", "session_id": "default"}`)

	assert.Equal(t, true, out["blocked"])
	assert.Empty(t, cache.store)

	// The refusal is still a turn the user saw.
	sess, _, err := sessions.Load(session.DefaultSessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Contains(t, sess.Messages[1].Content, "I cannot assist with this request.")

	summary, err := db.Summary(1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalInteractions)
}

// record is the unit the streaming chat path calls after each answer.
func TestRecorder_AppendsTurnAndLogsInteraction(t *testing.T) {
	store, err := session.NewFSStore(t.TempDir())
	require.NoError(t, err)
	sessions := session.NewManager(store)

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })

	rec := &interactionRecorder{sessions: sessions, db: db}

	warning := rec.record(session.DefaultSessionID, "user-1", "explain channels", &pipeline.Response{
		Answer:     "channels connect goroutines",
		Sources:    []retrieval.Chunk{{ID: "c1", Text: "chunk"}},
		Intent:     "explanation",
		Confidence: 0.8,
		State:      pipeline.StateDone,
	}, 1500)

	assert.Empty(t, warning)

	sess, ok, err := sessions.Load(session.DefaultSessionID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "explain channels", sess.Messages[0].Content)
	assert.Equal(t, "channels connect goroutines", sess.Messages[1].Content)
	assert.Equal(t, 1.5, sess.Messages[1].ElapsedTime)

	summary, err := db.Summary(1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalInteractions)
	assert.Equal(t, 1, summary.TotalUsers)
	assert.Equal(t, 1, summary.Intents["explanation"])
}

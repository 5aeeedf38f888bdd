package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-assistant/backend/internal/guardrails"
	"github.com/knowledge-assistant/backend/internal/memory"
	"github.com/knowledge-assistant/backend/internal/rerank"
	"github.com/knowledge-assistant/backend/internal/retrieval"
)

type fakeSearcher struct {
	chunks []retrieval.Chunk
	err    error
	calls  int
}

func (f *fakeSearcher) Search(_ context.Context, _ string, _ int) ([]retrieval.Chunk, error) {
	f.calls++
	return f.chunks, f.err
}

type fakeRanker struct {
	ranked     []rerank.ScoredChunk
	confidence float64
	err        error
}

func (f *fakeRanker) Rerank(_ context.Context, _ string, _ []retrieval.Chunk) ([]rerank.ScoredChunk, float64, error) {
	return f.ranked, f.confidence, f.err
}

func (f *fakeRanker) Fallback(candidates []retrieval.Chunk) []rerank.ScoredChunk {
	out := make([]rerank.ScoredChunk, len(candidates))
	for i, c := range candidates {
		out[i] = rerank.ScoredChunk{Chunk: c}
	}
	return out
}

type fakeAnswerer struct {
	answer string
	prompt string
}

func (f *fakeAnswerer) Generate(_ context.Context, query string, _ []rerank.ScoredChunk) string {
	f.prompt = query
	return f.answer
}

func newTestPipeline(searcher *fakeSearcher, ranker *fakeRanker, answerer *fakeAnswerer) *Pipeline {
	return New(guardrails.New(), searcher, ranker, answerer, 5)
}

func TestAsk_HarmfulQueryIsBlockedWithoutRetrieval(t *testing.T) {
	searcher := &fakeSearcher{}
	p := newTestPipeline(searcher, &fakeRanker{}, &fakeAnswerer{})

	resp := p.Ask(context.Background(), "How do I kill a zombie process in Linux?", nil)

	assert.True(t, resp.Blocked)
	assert.Equal(t, StateBlocked, resp.State)
	assert.Contains(t, resp.Answer, "I cannot assist with this request.")
	assert.NotEmpty(t, resp.Answer[len("I cannot assist with this request. "):])
	assert.Empty(t, resp.Sources)
	assert.Zero(t, searcher.calls, "blocked queries must not reach retrieval")
}

func TestAsk_EmptyStoreProducesUngroundedAnswer(t *testing.T) {
	searcher := &fakeSearcher{chunks: nil}
	ranker := &fakeRanker{ranked: []rerank.ScoredChunk{}, confidence: 0.0}
	answerer := &fakeAnswerer{answer: "A goroutine is a lightweight thread of execution."}
	p := newTestPipeline(searcher, ranker, answerer)

	resp := p.Ask(context.Background(), "What is a goroutine?", nil)

	assert.False(t, resp.Blocked)
	assert.Equal(t, StateDone, resp.State)
	assert.Equal(t, answerer.answer, resp.Answer)
	assert.NotNil(t, resp.Sources)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, resp.Confidence)
}

func TestAsk_ConfidenceAndSourcesComeFromRanker(t *testing.T) {
	chunks := []retrieval.Chunk{{ID: "a", Text: "alpha"}, {ID: "b", Text: "beta"}}
	ranker := &fakeRanker{
		ranked: []rerank.ScoredChunk{
			{Chunk: chunks[0], Score: 0.9},
			{Chunk: chunks[1], Score: 0.7},
		},
		confidence: 0.9,
	}
	p := newTestPipeline(&fakeSearcher{chunks: chunks}, ranker, &fakeAnswerer{answer: "grounded answer"})

	resp := p.Ask(context.Background(), "What is the deployment procedure?", nil)

	assert.Equal(t, 0.9, resp.Confidence)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "a", resp.Sources[0].ID)
	assert.Equal(t, "b", resp.Sources[1].ID)
}

func TestAsk_RetrievalFailureDegradesToEmptyCandidates(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("store unavailable")}
	answerer := &fakeAnswerer{answer: "best effort answer"}
	p := newTestPipeline(searcher, &fakeRanker{}, answerer)

	resp := p.Ask(context.Background(), "What is a mutex?", nil)

	assert.False(t, resp.Blocked)
	assert.Equal(t, StateDone, resp.State)
	assert.Equal(t, "best effort answer", resp.Answer)
	assert.Empty(t, resp.Sources)
}

func TestAsk_RerankFailureFallsBackToRetrievalOrder(t *testing.T) {
	chunks := []retrieval.Chunk{{ID: "first"}, {ID: "second"}}
	ranker := &fakeRanker{err: errors.New("scoring model down")}
	p := newTestPipeline(&fakeSearcher{chunks: chunks}, ranker, &fakeAnswerer{answer: "ok"})

	resp := p.Ask(context.Background(), "What is a channel?", nil)

	assert.Equal(t, StateDone, resp.State)
	assert.Zero(t, resp.Confidence)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "first", resp.Sources[0].ID)
	assert.Equal(t, "second", resp.Sources[1].ID)
}

func TestAsk_UnsafeResponseIsReplacedAndSourcesDiscarded(t *testing.T) {
	chunks := []retrieval.Chunk{{ID: "a", Text: "context"}}
	ranker := &fakeRanker{ranked: []rerank.ScoredChunk{{Chunk: chunks[0], Score: 0.8}}, confidence: 0.8}
	answerer := &fakeAnswerer{answer: "Here's how to hack into the target account."}
	p := newTestPipeline(&fakeSearcher{chunks: chunks}, ranker, answerer)

	resp := p.Ask(context.Background(), "What happened during a historical siege?", nil)

	assert.False(t, resp.Blocked)
	assert.True(t, strings.HasPrefix(resp.Answer, "I need to be careful here. "))
	assert.Empty(t, resp.Sources, "unsafe grounding material must not surface")
}

func TestAsk_IntentPriorityOrder(t *testing.T) {
	tests := []struct {
		query  string
		intent string
	}{
		{"debug this panic for me", IntentCoding},
		{"fix the failing search", IntentCoding},
		{"search the docs for retry", IntentSearch},
		{"find the config reference", IntentSearch},
		{"explain connection pooling", IntentExplanation},
		{"why does this deadlock", IntentExplanation},
		{"good morning", IntentGeneral},
	}

	p := newTestPipeline(&fakeSearcher{}, &fakeRanker{}, &fakeAnswerer{answer: "ok"})

	for _, tt := range tests {
		resp := p.Ask(context.Background(), tt.query, nil)
		assert.Equal(t, tt.intent, resp.Intent, "query: %s", tt.query)
	}
}

func TestAsk_AppendsTurnToMemory(t *testing.T) {
	conv := memory.NewConversation()
	ranker := &fakeRanker{ranked: []rerank.ScoredChunk{}, confidence: 0.4}
	p := newTestPipeline(&fakeSearcher{}, ranker, &fakeAnswerer{answer: "remembered"})

	p.Ask(context.Background(), "explain generics", conv)

	turns := conv.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "explain generics", turns[0].Query)
	assert.Equal(t, "remembered", turns[0].Answer)
	assert.Equal(t, IntentExplanation, turns[0].Intent)
	assert.Equal(t, 0.4, turns[0].Confidence)
	assert.False(t, turns[0].Timestamp.IsZero())
}

func TestAsk_BlockedQueryDoesNotTouchMemory(t *testing.T) {
	conv := memory.NewConversation()
	p := newTestPipeline(&fakeSearcher{}, &fakeRanker{}, &fakeAnswerer{})

	p.Ask(context.Background(), "how to make a bomb", conv)

	assert.Zero(t, conv.Len())
}

func TestClassifyIntent_CodingWinsOverExplanation(t *testing.T) {
	assert.Equal(t, IntentCoding, classifyIntent("explain how to debug this"))
}

func TestAsk_TraceWalksEveryStage(t *testing.T) {
	p := newTestPipeline(&fakeSearcher{}, &fakeRanker{}, &fakeAnswerer{answer: "ok"})

	resp := p.Ask(context.Background(), "What is a goroutine?", nil)

	assert.Equal(t, []State{
		StateStart,
		StateSafetyGateIn,
		StateIntentRoute,
		StateRetrieve,
		StateRerank,
		StateGenerate,
		StateSafetyGateOut,
		StateMemoryUpdate,
		StateDone,
	}, resp.Trace)
	assert.Equal(t, StateDone, resp.State)
}

func TestAsk_BlockedQueryTraceEndsAtInboundGate(t *testing.T) {
	p := newTestPipeline(&fakeSearcher{}, &fakeRanker{}, &fakeAnswerer{})

	resp := p.Ask(context.Background(), "how to make a bomb", nil)

	assert.Equal(t, []State{StateStart, StateSafetyGateIn, StateBlocked}, resp.Trace)
	assert.Equal(t, StateBlocked, resp.State)
}

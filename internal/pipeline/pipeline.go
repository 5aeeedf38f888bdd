package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/knowledge-assistant/backend/internal/guardrails"
	"github.com/knowledge-assistant/backend/internal/memory"
	"github.com/knowledge-assistant/backend/internal/metrics"
	"github.com/knowledge-assistant/backend/internal/rerank"
	"github.com/knowledge-assistant/backend/internal/retrieval"
	"github.com/knowledge-assistant/backend/pkg/logger"
)

// Safety is the slice of the guardrails engine the pipeline needs.
type Safety interface {
	CheckQuery(text string) guardrails.Verdict
	CheckResponse(text, originalQuery string) guardrails.Verdict
}

// DocumentSearcher finds the chunks most similar to the query.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]retrieval.Chunk, error)
}

// Ranker reorders retrieval candidates by pairwise relevance. Fallback is
// the degraded path when the scoring model is unavailable.
type Ranker interface {
	Rerank(ctx context.Context, query string, candidates []retrieval.Chunk) ([]rerank.ScoredChunk, float64, error)
	Fallback(candidates []retrieval.Chunk) []rerank.ScoredChunk
}

// Answerer produces the final answer text. It never fails; a broken model
// yields an error-description answer instead.
type Answerer interface {
	Generate(ctx context.Context, query string, chunks []rerank.ScoredChunk) string
}

// Response is the outcome of one ask call. Trace is the ordered list of
// states the run walked; State is the terminal one.
type Response struct {
	Answer     string            `json:"answer"`
	Sources    []retrieval.Chunk `json:"sources"`
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Blocked    bool              `json:"blocked"`
	State      State             `json:"state"`
	Trace      []State           `json:"-"`
	Elapsed    time.Duration     `json:"-"`
}

// Pipeline sequences the safety gates, intent routing, retrieval,
// re-ranking, generation and memory update for one question.
type Pipeline struct {
	safety   Safety
	store    DocumentSearcher
	ranker   Ranker
	answerer Answerer
	topK     int
}

func New(safety Safety, store DocumentSearcher, ranker Ranker, answerer Answerer, topK int) *Pipeline {
	if topK <= 0 {
		topK = rerank.DefaultTopK
	}
	return &Pipeline{
		safety:   safety,
		store:    store,
		ranker:   ranker,
		answerer: answerer,
		topK:     topK,
	}
}

// Ask runs the full pipeline. Expected failures degrade inside the run:
// a blocked query short-circuits with a refusal, an unavailable store
// yields an empty candidate set, a broken scorer falls back to retrieval
// order with zero confidence. Ask itself never returns an error.
func (p *Pipeline) Ask(ctx context.Context, query string, conv *memory.Conversation) *Response {
	start := time.Now()
	trace := []State{StateStart, StateSafetyGateIn}

	verdict := p.safety.CheckQuery(query)
	if !verdict.Safe {
		logger.Warn("Query blocked by guardrails",
			zap.String("reason", verdict.Reason),
			zap.String("category", verdict.Category),
		)
		metrics.QueriesBlocked.WithLabelValues("query").Inc()
		return &Response{
			Answer:  "I cannot assist with this request. " + verdict.Reason,
			Sources: []retrieval.Chunk{},
			Blocked: true,
			State:   StateBlocked,
			Trace:   append(trace, StateBlocked),
			Elapsed: time.Since(start),
		}
	}

	trace = append(trace, StateIntentRoute)
	intent := classifyIntent(query)
	logger.Info("Intent classified", zap.String("intent", intent))

	trace = append(trace, StateRetrieve)
	candidates, err := p.store.Search(ctx, query, p.topK)
	if err != nil {
		logger.Warn("Retrieval failed, continuing with empty candidate set", zap.Error(err))
		candidates = nil
	}
	metrics.RetrievalResultsCount.Observe(float64(len(candidates)))

	trace = append(trace, StateRerank)
	ranked, confidence, err := p.ranker.Rerank(ctx, query, candidates)
	if err != nil {
		logger.Warn("Re-ranking failed, falling back to retrieval order", zap.Error(err))
		ranked = p.ranker.Fallback(candidates)
		confidence = 0.0
	}

	trace = append(trace, StateGenerate)
	answer := p.answerer.Generate(ctx, query, ranked)

	sources := make([]retrieval.Chunk, 0, len(ranked))
	for _, sc := range ranked {
		sources = append(sources, sc.Chunk)
	}

	trace = append(trace, StateSafetyGateOut)
	if out := p.safety.CheckResponse(answer, query); !out.Safe {
		logger.Warn("Response blocked by guardrails", zap.String("reason", out.Reason))
		metrics.QueriesBlocked.WithLabelValues("response").Inc()
		answer = "I need to be careful here. " + out.Reason
		sources = []retrieval.Chunk{}
	}

	trace = append(trace, StateMemoryUpdate)
	if conv != nil {
		conv.Append(memory.Turn{
			Query:      query,
			Answer:     answer,
			Intent:     intent,
			Confidence: confidence,
			Timestamp:  time.Now(),
		})
	}

	elapsed := time.Since(start)
	logger.Info("Pipeline run completed",
		zap.String("intent", intent),
		zap.Int("sources", len(sources)),
		zap.Float64("confidence", confidence),
		zap.Duration("elapsed", elapsed),
	)

	return &Response{
		Answer:     answer,
		Sources:    sources,
		Intent:     intent,
		Confidence: confidence,
		State:      StateDone,
		Trace:      append(trace, StateDone),
		Elapsed:    elapsed,
	}
}

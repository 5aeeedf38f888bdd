package rerank

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/knowledge-assistant/backend/internal/retrieval"
	"github.com/knowledge-assistant/backend/pkg/logger"
)

const (
	DefaultThreshold = 0.5
	DefaultTopK      = 5
)

// ScoredChunk pairs a retrieved chunk with its pairwise relevance score.
// Scores are request-scoped and never persisted.
type ScoredChunk struct {
	Chunk retrieval.Chunk `json:"chunk"`
	Score float64         `json:"score"`
}

// PairScorer scores (query, candidate-text) pairs. One call per batch; it
// must return one score per input text, in input order.
type PairScorer interface {
	ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Reranker reorders retrieval candidates by pairwise relevance, drops
// candidates under the threshold and truncates to top-K.
type Reranker struct {
	scorer    PairScorer
	threshold float64
	topK      int
}

func New(scorer PairScorer, threshold float64, topK int) *Reranker {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if topK == 0 {
		topK = DefaultTopK
	}
	return &Reranker{
		scorer:    scorer,
		threshold: threshold,
		topK:      topK,
	}
}

// Rerank scores every candidate against the query and returns the surviving
// set in descending score order (stable: ties keep retrieval order) plus the
// answer confidence, which is the top survivor's score or 0.0 when nothing
// survives. An empty candidate list returns immediately without a scorer
// call.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []retrieval.Chunk) ([]ScoredChunk, float64, error) {
	if len(candidates) == 0 {
		return []ScoredChunk{}, 0.0, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	scores, err := r.scorer.ScorePairs(ctx, query, texts)
	if err != nil {
		return nil, 0.0, fmt.Errorf("failed to score candidates: %w", err)
	}
	if len(scores) != len(candidates) {
		return nil, 0.0, fmt.Errorf("scorer returned %d scores for %d candidates", len(scores), len(candidates))
	}

	scored := make([]ScoredChunk, len(candidates))
	for i, c := range candidates {
		scored[i] = ScoredChunk{Chunk: c, Score: scores[i]}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	surviving := make([]ScoredChunk, 0, len(scored))
	for _, sc := range scored {
		if sc.Score < r.threshold {
			continue
		}
		surviving = append(surviving, sc)
		if len(surviving) == r.topK {
			break
		}
	}

	confidence := 0.0
	if len(surviving) > 0 {
		confidence = surviving[0].Score
	}

	logger.Debug("Re-ranking completed",
		zap.Int("candidates", len(candidates)),
		zap.Int("surviving", len(surviving)),
		zap.Float64("confidence", confidence),
	)

	return surviving, confidence, nil
}

// Fallback returns the candidates in retrieval order, unscored, truncated to
// top-K. Used when the scoring model is unavailable so the pipeline degrades
// instead of aborting.
func (r *Reranker) Fallback(candidates []retrieval.Chunk) []ScoredChunk {
	n := len(candidates)
	if n > r.topK {
		n = r.topK
	}
	scored := make([]ScoredChunk, n)
	for i := 0; i < n; i++ {
		scored[i] = ScoredChunk{Chunk: candidates[i]}
	}
	return scored
}

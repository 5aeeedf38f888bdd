package rerank

import (
	"context"
	"fmt"
	"math"
)

// BatchEmbedder is the slice of the LLM client the scorer needs.
type BatchEmbedder interface {
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingScorer scores (query, candidate) pairs by cosine similarity of
// their embeddings. Query and candidates go out in one batch call.
type EmbeddingScorer struct {
	embedder BatchEmbedder
}

func NewEmbeddingScorer(embedder BatchEmbedder) *EmbeddingScorer {
	return &EmbeddingScorer{embedder: embedder}
}

func (s *EmbeddingScorer) ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	inputs := make([]string, 0, len(texts)+1)
	inputs = append(inputs, query)
	inputs = append(inputs, texts...)

	embeddings, err := s.embedder.GenerateBatchEmbeddings(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to embed rerank batch: %w", err)
	}
	if len(embeddings) != len(inputs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(embeddings), len(inputs))
	}

	queryVec := embeddings[0]
	scores := make([]float64, len(texts))
	for i, vec := range embeddings[1:] {
		scores[i] = cosineSimilarity(queryVec, vec)
	}

	return scores, nil
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

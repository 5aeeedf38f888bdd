package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/knowledge-assistant/backend/internal/cache/redis"
	"github.com/knowledge-assistant/backend/internal/vector/milvus"
	"github.com/knowledge-assistant/backend/pkg/logger"
	"github.com/knowledge-assistant/backend/pkg/utils"
)

// Chunk is a retrievable unit of ingested content. Immutable after
// ingestion; Score is the request-scoped retrieval similarity and is not
// persisted.
type Chunk struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float32           `json:"score"`
}

// Embedder turns text into a query vector.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs a similarity search over the chunk collection.
type Searcher interface {
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]milvus.SearchResult, error)
}

// Retriever embeds the query (with a redis-backed embedding cache) and
// searches the vector store.
type Retriever struct {
	embedder Embedder
	searcher Searcher
	cache    *redis.Client
}

func NewRetriever(embedder Embedder, searcher Searcher, cache *redis.Client) *Retriever {
	return &Retriever{
		embedder: embedder,
		searcher: searcher,
		cache:    cache,
	}
}

func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]Chunk, error) {
	embedding, err := r.queryEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.searcher.Search(ctx, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search vector store: %w", err)
	}

	chunks := make([]Chunk, 0, len(results))
	for _, res := range results {
		chunks = append(chunks, Chunk{
			ID:       res.ChunkID,
			Text:     res.Text,
			Source:   res.Source,
			Metadata: res.Metadata,
			Score:    res.Score,
		})
	}

	logger.Debug("Retrieval completed",
		zap.Int("topK", topK),
		zap.Int("results", len(chunks)),
	)

	return chunks, nil
}

func (r *Retriever) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	key := utils.HashString(query)

	if cached, ok, err := r.cache.GetEmbedding(ctx, key); err != nil {
		logger.Warn("Embedding cache read failed", zap.Error(err))
	} else if ok {
		return cached, nil
	}

	embedding, err := r.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}

	if err := r.cache.SetEmbedding(ctx, key, embedding); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}

	return embedding, nil
}

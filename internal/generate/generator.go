package generate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/knowledge-assistant/backend/internal/llm"
	"github.com/knowledge-assistant/backend/internal/rerank"
	"github.com/knowledge-assistant/backend/pkg/logger"
)

const systemPrompt = `You are an expert AI assistant specialized in:
- Complex software engineering and architecture
- Code analysis, review, and optimization
- System design and scalability
- Best practices and design patterns
- Debugging and troubleshooting

Provide detailed, accurate, and actionable responses. Include code examples when relevant.
Explain your reasoning and consider edge cases and production concerns.`

// Completer is the slice of the LLM client the generator needs.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Generator assembles a grounded prompt from the ranked chunks and obtains
// one completion. It never returns an error: a failed completion produces a
// literal error-description answer so the pipeline always has something to
// safety-check and persist.
type Generator struct {
	completer Completer
}

func New(completer Completer) *Generator {
	return &Generator{completer: completer}
}

func (g *Generator) Generate(ctx context.Context, query string, chunks []rerank.ScoredChunk) string {
	prompt := buildPrompt(query, chunks)

	resp, err := g.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
	})
	if err != nil {
		logger.Error("Answer generation failed", zap.Error(err))
		return fmt.Sprintf("Error generating answer: %v", err)
	}

	logger.Debug("Answer generated",
		zap.Int("context_chunks", len(chunks)),
		zap.Int("answer_length", len(resp.Content)),
	)

	return resp.Content
}

func buildPrompt(query string, chunks []rerank.ScoredChunk) string {
	context := formatContext(chunks)

	if context != "" {
		return fmt.Sprintf(`Based on the following context, answer the question.

Context:
%s

Question: %s

Provide a detailed, expert-level response with code examples if applicable. Answer using only the supplied context.`, context, query)
	}

	return fmt.Sprintf(`Answer this question about software engineering and coding:

Question: %s

Provide a comprehensive, expert-level response.`, query)
}

// formatContext concatenates chunk texts in ranked order, tagging each with
// a source marker the model can cite.
func formatContext(chunks []rerank.ScoredChunk) string {
	if len(chunks) == 0 {
		return ""
	}

	var parts []string
	for i, sc := range chunks {
		part := fmt.Sprintf("[Source %d] %s", i+1, sc.Chunk.Text)
		if sc.Chunk.Source != "" {
			part += fmt.Sprintf("\nSource: %s", sc.Chunk.Source)
		}
		parts = append(parts, part)
	}

	return strings.Join(parts, "\n\n")
}

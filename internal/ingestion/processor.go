package ingestion

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/knowledge-assistant/backend/internal/llm"
	"github.com/knowledge-assistant/backend/internal/storage/models"
	"github.com/knowledge-assistant/backend/internal/storage/sqlite"
	"github.com/knowledge-assistant/backend/internal/vector/milvus"
	"github.com/knowledge-assistant/backend/pkg/logger"
	"github.com/knowledge-assistant/backend/pkg/utils"
)

// Processor turns raw documents into embedded chunks: clean, segment into
// sentence-aligned chunks, embed, then record in both the relational store
// and the vector store.
type Processor struct {
	db           *sqlite.Client
	vectorDB     *milvus.Client
	llmClient    *llm.Client
	chunkSize    int
	chunkOverlap int
}

func NewProcessor(db *sqlite.Client, vectorDB *milvus.Client, llmClient *llm.Client, chunkSize, chunkOverlap int) *Processor {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 200
	}
	return &Processor{
		db:           db,
		vectorDB:     vectorDB,
		llmClient:    llmClient,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// ProcessDocument ingests one document. HTML sources are stripped to text
// first; plain text passes through unchanged.
func (p *Processor) ProcessDocument(ctx context.Context, source, content string) error {
	logger.Info("Processing document", zap.String("source", source))

	text := content
	docType := "text"
	if looksLikeHTML(content) {
		text = p.cleanHTML(content)
		docType = "html"
	}
	text = normalizeWhitespace(text)
	if text == "" {
		return fmt.Errorf("no content extracted from document")
	}

	docID := utils.HashString(source)
	doc := &models.Document{
		ID:         docID,
		Source:     source,
		Title:      p.extractTitle(content, source),
		DocType:    docType,
		RawContent: text,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if err := p.db.InsertDocument(doc); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	chunks := p.ChunkText(text)
	logger.Info("Document chunked", zap.Int("chunks", len(chunks)))

	embeddings, err := p.llmClient.GenerateBatchEmbeddings(ctx, chunks)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(chunks))
	}

	stored := make([]milvus.StoredChunk, 0, len(chunks))
	for i, chunkText := range chunks {
		chunkID := fmt.Sprintf("%s_chunk_%d", docID, i)
		stored = append(stored, milvus.StoredChunk{
			ID:        chunkID,
			Embedding: embeddings[i],
			Text:      chunkText,
			Source:    source,
			Metadata:  map[string]string{"doc_type": docType, "title": doc.Title},
			Timestamp: time.Now(),
		})

		dbChunk := &models.DocumentChunk{
			ID:          chunkID,
			DocID:       docID,
			ChunkIndex:  i,
			Text:        chunkText,
			EmbeddingID: chunkID,
			CreatedAt:   time.Now(),
		}
		if err := p.db.InsertChunk(dbChunk); err != nil {
			logger.Warn("Failed to record chunk", zap.String("chunk_id", chunkID), zap.Error(err))
		}
	}

	if len(stored) > 0 {
		if err := p.vectorDB.Insert(ctx, stored); err != nil {
			return fmt.Errorf("failed to insert into vector DB: %w", err)
		}
	}

	logger.Info("Document processed successfully",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(stored)),
	)

	return nil
}

func (p *Processor) cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	return doc.Find("body").Text()
}

func (p *Processor) extractTitle(content, source string) string {
	if looksLikeHTML(content) {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(content)); err == nil {
			title := strings.TrimSpace(doc.Find("title").First().Text())
			if title == "" {
				title = strings.TrimSpace(doc.Find("h1").First().Text())
			}
			if title != "" {
				return title
			}
		}
	}

	if idx := strings.LastIndexAny(source, "/\\"); idx >= 0 && idx < len(source)-1 {
		return source[idx+1:]
	}
	if source != "" {
		return source
	}
	return "Untitled"
}

// ChunkText segments text into chunks of at most chunkSize characters,
// splitting on sentence boundaries so no sentence is cut in half. The tail
// sentences of each chunk (up to chunkOverlap characters) are carried into
// the next chunk for retrieval continuity.
func (p *Processor) ChunkText(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0
	fresh := 0

	flush := func() {
		if fresh == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, " "))

		var overlap []string
		overlapLen := 0
		for i := len(current) - 1; i >= 0; i-- {
			sentenceLen := len(current[i]) + 1
			if overlapLen+sentenceLen > p.chunkOverlap {
				break
			}
			overlap = append([]string{current[i]}, overlap...)
			overlapLen += sentenceLen
		}
		current = overlap
		currentLen = overlapLen
		fresh = 0
	}

	for _, sentence := range sentences {
		sentenceLen := len(sentence) + 1
		if currentLen+sentenceLen > p.chunkSize && fresh > 0 {
			flush()
		}
		current = append(current, sentence)
		currentLen += sentenceLen
		fresh++
	}
	flush()

	return chunks
}

// splitSentences tokenizes with the prose segmenter; an oversized single
// sentence is left intact and becomes its own chunk.
func splitSentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		logger.Warn("Sentence segmentation failed, falling back to whole text", zap.Error(err))
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	var sentences []string
	for _, s := range doc.Sentences() {
		trimmed := strings.TrimSpace(s.Text)
		if trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	return sentences
}

var whitespaceRE = regexp.MustCompile(`\s+`)

func normalizeWhitespace(text string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(text, " "))
}

func looksLikeHTML(content string) bool {
	lower := strings.ToLower(content)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<body") || strings.Contains(lower, "<p>")
}

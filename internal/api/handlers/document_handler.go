package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/knowledge-assistant/backend/internal/cache/redis"
	"github.com/knowledge-assistant/backend/internal/ingestion"
	"github.com/knowledge-assistant/backend/internal/metrics"
	"github.com/knowledge-assistant/backend/internal/storage/sqlite"
	"github.com/knowledge-assistant/backend/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
	db        *sqlite.Client
	cache     *redis.Client
}

func NewDocumentHandler(processor *ingestion.Processor, db *sqlite.Client, cache *redis.Client) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		db:        db,
		cache:     cache,
	}
}

func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	var req struct {
		Source  string `json:"source"`
		Content string `json:"content"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Source == "" || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Source and content are required",
		})
	}

	if err := h.processor.ProcessDocument(c.Context(), req.Source, req.Content); err != nil {
		logger.Error("Failed to process document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process document",
		})
	}

	metrics.DocumentsProcessed.Inc()

	// Cached answers may be grounded on the old chunk set.
	if err := h.cache.InvalidateAnswers(c.Context()); err != nil {
		logger.Warn("Failed to invalidate answer cache", zap.Error(err))
	}

	return c.JSON(fiber.Map{
		"message": "Document processed successfully",
		"source":  req.Source,
	})
}

func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	docs, err := h.db.ListDocuments(limit)
	if err != nil {
		logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}

	return c.JSON(fiber.Map{
		"documents": docs,
	})
}

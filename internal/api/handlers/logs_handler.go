package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/knowledge-assistant/backend/internal/storage/sqlite"
	"github.com/knowledge-assistant/backend/pkg/logger"
)

// LogsHandler reports aggregate usage from the interaction log.
type LogsHandler struct {
	db *sqlite.Client
}

func NewLogsHandler(db *sqlite.Client) *LogsHandler {
	return &LogsHandler{db: db}
}

func (h *LogsHandler) GetSummary(c *fiber.Ctx) error {
	days := c.QueryInt("days", 30)
	if days <= 0 {
		days = 30
	}

	summary, err := h.db.Summary(days)
	if err != nil {
		logger.Error("Failed to build log summary", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build log summary",
		})
	}

	return c.JSON(summary)
}

package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/knowledge-assistant/backend/internal/guardrails"
	"github.com/knowledge-assistant/backend/pkg/logger"
)

// SafetyHandler exposes the guardrails engine directly so external callers
// can pre-screen content and audit the policy.
type SafetyHandler struct {
	engine *guardrails.Engine
}

func NewSafetyHandler(engine *guardrails.Engine) *SafetyHandler {
	return &SafetyHandler{engine: engine}
}

func (h *SafetyHandler) CheckQuery(c *fiber.Ctx) error {
	var req struct {
		Text string `json:"text"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Text is required",
		})
	}

	return c.JSON(h.engine.CheckQuery(req.Text))
}

func (h *SafetyHandler) CheckResponse(c *fiber.Ctx) error {
	var req struct {
		Text  string `json:"text"`
		Query string `json:"query"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Text is required",
		})
	}

	return c.JSON(h.engine.CheckResponse(req.Text, req.Query))
}

func (h *SafetyHandler) GetGuidelines(c *fiber.Ctx) error {
	return c.JSON(h.engine.Guidelines())
}

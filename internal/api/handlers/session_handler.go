package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/knowledge-assistant/backend/internal/metrics"
	"github.com/knowledge-assistant/backend/internal/session"
	"github.com/knowledge-assistant/backend/pkg/logger"
)

// SessionHandler is the CRUD surface over persisted sessions.
type SessionHandler struct {
	sessions *session.Manager
}

func NewSessionHandler(sessions *session.Manager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type sessionInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Messages  int       `json:"messages"`
	Active    bool      `json:"active"`
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	all, err := h.sessions.ListAll()
	if err != nil {
		logger.Error("Failed to list sessions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list sessions",
		})
	}

	active := h.sessions.Active()
	infos := make([]sessionInfo, 0, len(all))
	for id, sess := range all {
		infos = append(infos, sessionInfo{
			ID:        id,
			Title:     sess.Title,
			CreatedAt: sess.CreatedAt,
			Messages:  len(sess.Messages),
			Active:    id == active,
		})
	}

	metrics.SessionsActive.Set(float64(len(all)))

	return c.JSON(fiber.Map{
		"sessions": infos,
		"active":   active,
	})
}

func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	var req struct {
		Title string `json:"title"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Title == "" {
		req.Title = "New Session"
	}

	sess, err := h.sessions.Create(req.Title)
	if err != nil {
		logger.Error("Failed to create session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create session",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(sess)
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	id := c.Params("id")

	sess, ok, err := h.sessions.Load(id)
	if err != nil {
		logger.Error("Failed to load session", zap.String("session_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load session",
		})
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	return c.JSON(sess)
}

func (h *SessionHandler) DeleteSession(c *fiber.Ctx) error {
	id := c.Params("id")

	if id == session.DefaultSessionID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "The default session cannot be deleted",
		})
	}

	if err := h.sessions.Delete(id); err != nil {
		logger.Error("Failed to delete session", zap.String("session_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete session",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Session deleted",
		"active":  h.sessions.Active(),
	})
}

func (h *SessionHandler) ActivateSession(c *fiber.Ctx) error {
	id := c.Params("id")

	_, ok, err := h.sessions.Load(id)
	if err != nil {
		logger.Error("Failed to load session", zap.String("session_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load session",
		})
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	h.sessions.SetActive(id)

	return c.JSON(fiber.Map{
		"active": id,
	})
}

func (h *SessionHandler) CleanupSessions(c *fiber.Ctx) error {
	var req struct {
		RetentionDays int `json:"retention_days"`
	}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	retention := session.DefaultRetention
	if req.RetentionDays > 0 {
		retention = time.Duration(req.RetentionDays) * 24 * time.Hour
	}

	removed, err := h.sessions.Cleanup(retention)
	if err != nil {
		logger.Error("Session cleanup failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Session cleanup failed",
		})
	}

	return c.JSON(fiber.Map{
		"removed": removed,
	})
}

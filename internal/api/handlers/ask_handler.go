package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/knowledge-assistant/backend/internal/memory"
	"github.com/knowledge-assistant/backend/internal/metrics"
	"github.com/knowledge-assistant/backend/internal/pipeline"
	"github.com/knowledge-assistant/backend/internal/retrieval"
	"github.com/knowledge-assistant/backend/internal/session"
	"github.com/knowledge-assistant/backend/internal/storage/sqlite"
	"github.com/knowledge-assistant/backend/pkg/logger"
	"github.com/knowledge-assistant/backend/pkg/utils"
)

// AnswerCache is the slice of the redis client the ask path needs.
type AnswerCache interface {
	GetAnswer(ctx context.Context, queryHash string, answer interface{}) (bool, error)
	SetAnswer(ctx context.Context, queryHash string, answer interface{}) error
}

// AskHandler serves the main question endpoint: session lookup, answer
// cache, pipeline run, session persistence and interaction logging.
type AskHandler struct {
	pipe     *pipeline.Pipeline
	sessions *session.Manager
	cache    AnswerCache
	rec      *interactionRecorder
}

func NewAskHandler(pipe *pipeline.Pipeline, sessions *session.Manager, db *sqlite.Client, cache AnswerCache) *AskHandler {
	return &AskHandler{
		pipe:     pipe,
		sessions: sessions,
		cache:    cache,
		rec:      &interactionRecorder{sessions: sessions, db: db},
	}
}

type askRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type askResponse struct {
	Answer     string            `json:"answer"`
	Sources    []retrieval.Chunk `json:"sources"`
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Blocked    bool              `json:"blocked"`
	State      pipeline.State    `json:"state"`
	SessionID  string            `json:"session_id"`
	ElapsedMS  int               `json:"elapsed_ms"`
	Cached     bool              `json:"cached,omitempty"`
	Warning    string            `json:"warning,omitempty"`
}

func (h *AskHandler) HandleAsk(c *fiber.Ctx) error {
	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = h.sessions.Active()
	}

	sess, ok, err := h.sessions.Load(sessionID)
	if err != nil || !ok {
		if err != nil {
			logger.Warn("Session load failed, using default", zap.Error(err))
		}
		sess, _, _ = h.sessions.Load(session.DefaultSessionID)
		sessionID = session.DefaultSessionID
	}

	cacheKey := utils.HashString(req.Query)
	var cached askResponse
	if hit, err := h.cache.GetAnswer(c.Context(), cacheKey, &cached); err != nil {
		logger.Warn("Answer cache read failed", zap.Error(err))
	} else if hit {
		metrics.CacheHits.WithLabelValues("answer").Inc()
		cached.Cached = true
		cached.SessionID = sessionID
		// A cache hit is still a turn the user sees: it joins the session
		// history and the interaction log like a fresh answer.
		cached.Warning = h.rec.record(sessionID, req.UserID, req.Query, &pipeline.Response{
			Answer:     cached.Answer,
			Sources:    cached.Sources,
			Intent:     cached.Intent,
			Confidence: cached.Confidence,
			Blocked:    cached.Blocked,
			State:      cached.State,
		}, cached.ElapsedMS)
		return c.JSON(cached)
	}
	metrics.CacheMisses.WithLabelValues("answer").Inc()

	var conv *memory.Conversation
	if sess != nil {
		conv = memory.FromTurns(sess.History())
	}
	resp := h.pipe.Ask(c.Context(), req.Query, conv)

	elapsedMS := int(resp.Elapsed.Milliseconds())
	h.recordMetrics(resp)

	warning := h.rec.record(sessionID, req.UserID, req.Query, resp, elapsedMS)

	out := askResponse{
		Answer:     resp.Answer,
		Sources:    resp.Sources,
		Intent:     resp.Intent,
		Confidence: resp.Confidence,
		Blocked:    resp.Blocked,
		State:      resp.State,
		SessionID:  sessionID,
		ElapsedMS:  elapsedMS,
		Warning:    warning,
	}

	if !resp.Blocked {
		if err := h.cache.SetAnswer(c.Context(), cacheKey, out); err != nil {
			logger.Warn("Answer cache write failed", zap.Error(err))
		}
	}

	return c.JSON(out)
}

func (h *AskHandler) recordMetrics(resp *pipeline.Response) {
	if resp.Blocked {
		metrics.QueryTotal.WithLabelValues("blocked").Inc()
		return
	}

	metrics.QueryTotal.WithLabelValues("ok").Inc()
	metrics.QueryDuration.WithLabelValues(resp.Intent).Observe(resp.Elapsed.Seconds())
	metrics.ConfidenceScore.Observe(resp.Confidence)
	metrics.RerankSurvivorsCount.Observe(float64(len(resp.Sources)))
}

package handlers

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/knowledge-assistant/backend/internal/pipeline"
	"github.com/knowledge-assistant/backend/internal/session"
	"github.com/knowledge-assistant/backend/internal/storage/models"
	"github.com/knowledge-assistant/backend/internal/storage/sqlite"
	"github.com/knowledge-assistant/backend/pkg/logger"
)

const persistWarning = "Conversation could not be saved; history may be incomplete."

// interactionRecorder appends the answered turn to the session and writes
// the interaction log row. Every answer the user sees goes through here,
// regardless of transport and regardless of whether it came from the cache.
type interactionRecorder struct {
	sessions *session.Manager
	db       *sqlite.Client
}

// record returns a warning string when session persistence failed, empty
// otherwise. A failed log insert warns without failing the request.
func (r *interactionRecorder) record(sessionID, userID, query string, resp *pipeline.Response, elapsedMS int) string {
	now := time.Now()

	warning := ""
	err := r.sessions.AppendMessages(sessionID,
		session.Message{
			Role:      session.RoleUser,
			Content:   query,
			Timestamp: now,
		},
		session.Message{
			Role:        session.RoleAssistant,
			Content:     resp.Answer,
			Sources:     resp.Sources,
			Intent:      resp.Intent,
			Confidence:  resp.Confidence,
			ElapsedTime: float64(elapsedMS) / 1000.0,
			Timestamp:   now,
		},
	)
	if err != nil {
		logger.Warn("Failed to persist session", zap.String("session_id", sessionID), zap.Error(err))
		warning = persistWarning
	}

	rec := &models.Interaction{
		ID:           uuid.New().String(),
		SessionID:    sessionID,
		UserID:       userID,
		Query:        query,
		Answer:       resp.Answer,
		Intent:       resp.Intent,
		Confidence:   resp.Confidence,
		Blocked:      resp.Blocked,
		SourcesCount: len(resp.Sources),
		ElapsedMS:    elapsedMS,
		CreatedAt:    now,
	}
	if err := r.db.InsertInteraction(rec); err != nil {
		logger.Warn("Failed to record interaction", zap.Error(err))
	}

	return warning
}

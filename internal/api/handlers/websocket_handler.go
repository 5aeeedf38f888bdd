package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/knowledge-assistant/backend/internal/memory"
	"github.com/knowledge-assistant/backend/internal/pipeline"
	"github.com/knowledge-assistant/backend/internal/session"
	"github.com/knowledge-assistant/backend/internal/storage/sqlite"
	"github.com/knowledge-assistant/backend/pkg/logger"
)

// WebSocketHandler streams pipeline answers word by word over a chat
// connection. Streamed turns persist the same way HTTP turns do.
type WebSocketHandler struct {
	pipe     *pipeline.Pipeline
	sessions *session.Manager
	rec      *interactionRecorder
}

func NewWebSocketHandler(pipe *pipeline.Pipeline, sessions *session.Manager, db *sqlite.Client) *WebSocketHandler {
	return &WebSocketHandler{
		pipe:     pipe,
		sessions: sessions,
		rec:      &interactionRecorder{sessions: sessions, db: db},
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type      string `json:"type"`
			Content   string `json:"content"`
			SessionID string `json:"session_id"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "query" || msg.Content == "" {
			continue
		}

		logger.Info("Processing WebSocket query", zap.String("query", msg.Content))

		err = h.streamResponse(c, msg.Content, msg.SessionID)
		if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, "Failed to process query")
		}
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, query, sessionID string) error {
	ctx := context.Background()

	if sessionID == "" {
		sessionID = h.sessions.Active()
	}

	var conv *memory.Conversation
	if sess, ok, err := h.sessions.Load(sessionID); err == nil && ok {
		conv = memory.FromTurns(sess.History())
	}

	if err := h.sendChunk(c, "status", "Processing query..."); err != nil {
		return err
	}

	resp := h.pipe.Ask(ctx, query, conv)

	h.rec.record(sessionID, "", query, resp, int(resp.Elapsed.Milliseconds()))

	words := splitIntoWords(resp.Answer)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}

		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return h.sendComplete(c, sessionID, resp)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, sessionID string, resp *pipeline.Response) error {
	return c.WriteJSON(map[string]interface{}{
		"type":       "complete",
		"session_id": sessionID,
		"sources":    resp.Sources,
		"intent":     resp.Intent,
		"confidence": resp.Confidence,
		"blocked":    resp.Blocked,
		"elapsed_ms": resp.Elapsed.Milliseconds(),
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}

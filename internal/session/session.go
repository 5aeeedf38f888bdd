package session

import (
	"time"

	"github.com/knowledge-assistant/backend/internal/memory"
	"github.com/knowledge-assistant/backend/internal/retrieval"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat entry in a session's history. Timestamps serialize
// through encoding/json as RFC 3339, which is unambiguous and sortable.
type Message struct {
	Role        string            `json:"role"`
	Content     string            `json:"content"`
	Sources     []retrieval.Chunk `json:"sources,omitempty"`
	Intent      string            `json:"intent,omitempty"`
	Confidence  float64           `json:"confidence,omitempty"`
	ElapsedTime float64           `json:"elapsed_time,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Session is an isolated conversation thread. Sessions never share turns.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// History pairs the session's user/assistant messages into conversation
// turns for the pipeline, most recent turns last.
func (s *Session) History() []memory.Turn {
	var turns []memory.Turn
	var pending *Message

	for i := range s.Messages {
		msg := &s.Messages[i]
		switch msg.Role {
		case RoleUser:
			pending = msg
		case RoleAssistant:
			if pending == nil {
				continue
			}
			turns = append(turns, memory.Turn{
				Query:      pending.Content,
				Answer:     msg.Content,
				Intent:     msg.Intent,
				Confidence: msg.Confidence,
				Timestamp:  msg.Timestamp,
			})
			pending = nil
		}
	}

	return turns
}

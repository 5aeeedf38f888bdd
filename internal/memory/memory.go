package memory

import "time"

// MaxTurns caps a session's conversation memory. Appending beyond the cap
// evicts the oldest turns first.
const MaxTurns = 20

// Turn is one completed exchange. Owned by exactly one session's
// conversation.
type Turn struct {
	Query      string    `json:"query"`
	Answer     string    `json:"answer"`
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Conversation is a bounded, ordered log of prior turns for one session.
// Not safe for concurrent use; callers serialize per session.
type Conversation struct {
	turns []Turn
}

func NewConversation() *Conversation {
	return &Conversation{}
}

// FromTurns rebuilds a conversation from persisted history, applying the
// cap so restored sessions obey the same bound as live ones.
func FromTurns(turns []Turn) *Conversation {
	c := &Conversation{}
	for _, t := range turns {
		c.Append(t)
	}
	return c
}

func (c *Conversation) Append(turn Turn) {
	c.turns = append(c.turns, turn)
	if len(c.turns) > MaxTurns {
		c.turns = c.turns[len(c.turns)-MaxTurns:]
	}
}

func (c *Conversation) Len() int {
	return len(c.turns)
}

// Turns returns the turns in chronological order (oldest first). The
// returned slice is a copy.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

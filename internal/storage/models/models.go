package models

import "time"

type Document struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Title      string    `json:"title"`
	DocType    string    `json:"doc_type"`
	RawContent string    `json:"raw_content,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type DocumentChunk struct {
	ID          string
	DocID       string
	ChunkIndex  int
	Text        string
	EmbeddingID string
	CreatedAt   time.Time
}

// Interaction is one answered (or blocked) question, recorded for the
// usage summary. ElapsedMS covers the full pipeline run.
type Interaction struct {
	ID           string
	SessionID    string
	UserID       string
	Query        string
	Answer       string
	Intent       string
	Confidence   float64
	Blocked      bool
	SourcesCount int
	ElapsedMS    int
	CreatedAt    time.Time
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// LogSummary aggregates the interaction log over a trailing window.
type LogSummary struct {
	TotalInteractions int            `json:"total_interactions"`
	TotalSessions     int            `json:"total_sessions"`
	TotalUsers        int            `json:"total_users"`
	AvgResponseTime   float64        `json:"avg_response_time"`
	Intents           map[string]int `json:"intents"`
	DailyStats        []DailyCount   `json:"daily_stats"`
}

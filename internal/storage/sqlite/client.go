package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/knowledge-assistant/backend/internal/storage/models"
	"github.com/knowledge-assistant/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		source TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		doc_type TEXT,
		raw_content TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(doc_type);
	CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding_id TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON document_chunks(doc_id);

	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_id TEXT,
		query_text TEXT NOT NULL,
		answer TEXT,
		intent TEXT,
		confidence REAL,
		blocked INTEGER DEFAULT 0,
		sources_count INTEGER DEFAULT 0,
		elapsed_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_session ON interactions(session_id);
	CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertDocument(doc *models.Document) error {
	query := `
		INSERT INTO documents (id, source, title, doc_type, raw_content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			raw_content = excluded.raw_content,
			updated_at = excluded.updated_at
	`

	_, err := c.db.Exec(
		query,
		doc.ID,
		doc.Source,
		doc.Title,
		doc.DocType,
		doc.RawContent,
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Document inserted", zap.String("doc_id", doc.ID), zap.String("source", doc.Source))
	return nil
}

func (c *Client) GetDocument(id string) (*models.Document, error) {
	query := `SELECT id, source, title, doc_type, raw_content, created_at, updated_at FROM documents WHERE id = ?`

	var doc models.Document
	var createdAt, updatedAt int64

	err := c.db.QueryRow(query, id).Scan(
		&doc.ID,
		&doc.Source,
		&doc.Title,
		&doc.DocType,
		&doc.RawContent,
		&createdAt,
		&updatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)

	return &doc, nil
}

func (c *Client) ListDocuments(limit int) ([]models.Document, error) {
	query := `
		SELECT id, source, title, doc_type, created_at, updated_at
		FROM documents
		ORDER BY updated_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var d models.Document
		var createdAt, updatedAt int64

		err := rows.Scan(&d.ID, &d.Source, &d.Title, &d.DocType, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		d.CreatedAt = time.Unix(createdAt, 0)
		d.UpdatedAt = time.Unix(updatedAt, 0)
		docs = append(docs, d)
	}

	return docs, rows.Err()
}

func (c *Client) InsertChunk(chunk *models.DocumentChunk) error {
	query := `INSERT INTO document_chunks (id, doc_id, chunk_index, text, embedding_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		chunk.ID,
		chunk.DocID,
		chunk.ChunkIndex,
		chunk.Text,
		chunk.EmbeddingID,
		chunk.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	return nil
}

func (c *Client) InsertInteraction(rec *models.Interaction) error {
	query := `
		INSERT INTO interactions (id, session_id, user_id, query_text, answer, intent,
			confidence, blocked, sources_count, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	blocked := 0
	if rec.Blocked {
		blocked = 1
	}

	_, err := c.db.Exec(
		query,
		rec.ID,
		rec.SessionID,
		rec.UserID,
		rec.Query,
		rec.Answer,
		rec.Intent,
		rec.Confidence,
		blocked,
		rec.SourcesCount,
		rec.ElapsedMS,
		rec.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}

	logger.Info("Interaction recorded",
		zap.String("interaction_id", rec.ID),
		zap.String("session_id", rec.SessionID),
		zap.String("intent", rec.Intent),
		zap.Float64("confidence", rec.Confidence),
	)

	return nil
}

// Summary aggregates the interaction log over the trailing days window.
// Rows that fail to scan are skipped so one bad row cannot sink the report.
func (c *Client) Summary(days int) (*models.LogSummary, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days).Unix()

	query := `
		SELECT session_id, user_id, intent, elapsed_ms, created_at
		FROM interactions
		WHERE created_at >= ?
		ORDER BY created_at ASC
	`

	rows, err := c.db.Query(query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	summary := &models.LogSummary{Intents: make(map[string]int)}
	sessions := make(map[string]struct{})
	users := make(map[string]struct{})
	daily := make(map[string]int)
	var dayOrder []string
	var elapsedTotal int64

	for rows.Next() {
		var sessionID, intent string
		var userID sql.NullString
		var elapsedMS sql.NullInt64
		var createdAt int64

		if err := rows.Scan(&sessionID, &userID, &intent, &elapsedMS, &createdAt); err != nil {
			logger.Warn("Skipping malformed interaction row", zap.Error(err))
			continue
		}

		summary.TotalInteractions++
		sessions[sessionID] = struct{}{}
		if userID.Valid && userID.String != "" {
			users[userID.String] = struct{}{}
		}
		if intent != "" {
			summary.Intents[intent]++
		}
		elapsedTotal += elapsedMS.Int64

		day := time.Unix(createdAt, 0).UTC().Format("2006-01-02")
		if _, seen := daily[day]; !seen {
			dayOrder = append(dayOrder, day)
		}
		daily[day]++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read interactions: %w", err)
	}

	summary.TotalSessions = len(sessions)
	summary.TotalUsers = len(users)
	if summary.TotalInteractions > 0 {
		summary.AvgResponseTime = float64(elapsedTotal) / float64(summary.TotalInteractions) / 1000.0
	}
	for _, day := range dayOrder {
		summary.DailyStats = append(summary.DailyStats, models.DailyCount{Date: day, Count: daily[day]})
	}

	return summary, nil
}

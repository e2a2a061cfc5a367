// Package tracker records token usage of playground requests per API key.
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pocketllm/pocketllm/pkg/models"
)

// Tracker records and queries token usage.
type Tracker interface {
	// Record stores a usage record.
	Record(ctx context.Context, rec models.UsageRecord) error
	// QueryByKey returns usage records for an API key since a given time.
	QueryByKey(ctx context.Context, keyID string, since time.Time) ([]models.UsageRecord, error)
	// TotalByKey returns total tokens used by an API key since a given time.
	TotalByKey(ctx context.Context, keyID string, since time.Time) (int64, error)
	// Summary returns aggregated usage, optionally filtered by API key.
	Summary(ctx context.Context, keyID string) ([]models.UsageSummary, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db  *sql.DB
	now func() time.Time
}

const createTable = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	key_id TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_key_time ON usage_records(key_id, created_at);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}
	return &SQLiteTracker{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Record stores a usage record. A zero CreatedAt is set to now.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = t.now()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO usage_records (key_id, model, prompt_tokens, completion_tokens, total_tokens, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.KeyID, rec.Model, rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// QueryByKey returns usage records for an API key since a given time, newest first.
func (t *SQLiteTracker) QueryByKey(ctx context.Context, keyID string, since time.Time) ([]models.UsageRecord, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, key_id, model, prompt_tokens, completion_tokens, total_tokens, created_at
		 FROM usage_records WHERE key_id = ? AND created_at >= ? ORDER BY created_at DESC, id DESC`,
		keyID, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		if err := rows.Scan(&r.ID, &r.KeyID, &r.Model, &r.PromptTokens, &r.CompletionTokens, &r.TotalTokens, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// TotalByKey returns total tokens used by an API key since a given time.
func (t *SQLiteTracker) TotalByKey(ctx context.Context, keyID string, since time.Time) (int64, error) {
	var total int64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_tokens), 0) FROM usage_records WHERE key_id = ? AND created_at >= ?`,
		keyID, since.UTC(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total usage: %w", err)
	}
	return total, nil
}

// Summary returns aggregated usage grouped by API key and model.
func (t *SQLiteTracker) Summary(ctx context.Context, keyID string) ([]models.UsageSummary, error) {
	query := `SELECT key_id, model, COUNT(*), SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens)
		 FROM usage_records`
	var args []any
	if keyID != "" {
		query += ` WHERE key_id = ?`
		args = append(args, keyID)
	}
	query += ` GROUP BY key_id, model ORDER BY key_id, model`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	summaries := []models.UsageSummary{}
	for rows.Next() {
		var s models.UsageSummary
		if err := rows.Scan(&s.KeyID, &s.Model, &s.RequestCount, &s.TotalPrompt, &s.TotalCompletion, &s.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}

// Package audit keeps a log of inference dispatch attempts.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"

	"github.com/pocketllm/pocketllm/pkg/models"
)

// Logger writes and queries dispatch attempts in a dedicated SQLite database.
type Logger struct {
	db   *sql.DB
	cfg  models.AuditConfig
	done chan struct{}
	wg   sync.WaitGroup
}

// New opens the audit SQLite database and creates the schema.
func New(cfg models.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	l := &Logger{
		db:   db,
		cfg:  cfg,
		done: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS dispatch_attempts (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL DEFAULT '',
		endpoint        TEXT NOT NULL,
		origin          TEXT NOT NULL,
		outcome         TEXT NOT NULL,
		detail          TEXT,
		latency_ms      INTEGER NOT NULL,
		created_at      DATETIME NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_attempts_created ON dispatch_attempts(created_at)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_attempts_endpoint ON dispatch_attempts(endpoint, outcome)`)
	return err
}

// Log inserts one attempt record. Detail is truncated to MaxDetailSize.
func (l *Logger) Log(ctx context.Context, rec models.AttemptRecord) error {
	if l == nil || l.db == nil {
		return nil
	}

	detail := truncateDetail(rec.Detail, l.cfg.MaxDetailSize)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO dispatch_attempts
		(conversation_id, endpoint, origin, outcome, detail, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ConversationID, rec.Endpoint, rec.Origin, rec.Outcome,
		detail, rec.LatencyMs, rec.CreatedAt.UTC(),
	)
	return err
}

// truncateDetail cuts s to at most limit bytes without splitting a rune.
func truncateDetail(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// RecordAttempts logs every attempt of one dispatch call.
func (l *Logger) RecordAttempts(ctx context.Context, conversationID string, attempts []models.DispatchAttempt) error {
	for _, a := range attempts {
		err := l.Log(ctx, models.AttemptRecord{
			ConversationID: conversationID,
			Endpoint:       a.Endpoint.URL,
			Origin:         string(a.Endpoint.Origin),
			Outcome:        string(a.Outcome),
			Detail:         a.Detail,
			LatencyMs:      a.Latency.Milliseconds(),
			CreatedAt:      a.StartedAt,
		})
		if err != nil {
			return fmt.Errorf("log attempt for %s: %w", a.Endpoint.URL, err)
		}
	}
	return nil
}

// Query returns attempt records matching the given options, newest first.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AttemptRecord, error) {
	q := `SELECT id, conversation_id, endpoint, origin, outcome, detail, latency_ms, created_at
		FROM dispatch_attempts WHERE 1=1`
	var args []any

	if opts.Endpoint != "" {
		q += " AND endpoint = ?"
		args = append(args, opts.Endpoint)
	}
	if opts.Outcome != "" {
		q += " AND outcome = ?"
		args = append(args, opts.Outcome)
	}
	if opts.ConversationID != "" {
		q += " AND conversation_id = ?"
		args = append(args, opts.ConversationID)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UTC())
	}

	q += " ORDER BY created_at DESC, id DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var records []models.AttemptRecord
	for rows.Next() {
		var r models.AttemptRecord
		var detail sql.NullString
		if err := rows.Scan(
			&r.ID, &r.ConversationID, &r.Endpoint, &r.Origin, &r.Outcome,
			&detail, &r.LatencyMs, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		r.Detail = detail.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// Stats returns attempt counts and mean latency grouped by endpoint and outcome.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT endpoint, outcome, count(*) AS cnt, avg(latency_ms)
		 FROM dispatch_attempts GROUP BY endpoint, outcome ORDER BY cnt DESC, endpoint, outcome`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var avg sql.NullFloat64
		if err := rows.Scan(&s.Endpoint, &s.Outcome, &s.Count, &avg); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.AvgLatencyMs = avg.Float64
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// AvgLatency returns the mean latency in milliseconds of successful attempts
// since the given time, or 0 when there are none.
func (l *Logger) AvgLatency(ctx context.Context, since time.Time) (float64, error) {
	if l == nil || l.db == nil {
		return 0, nil
	}
	var avg sql.NullFloat64
	err := l.db.QueryRowContext(ctx,
		`SELECT avg(latency_ms) FROM dispatch_attempts WHERE outcome = ? AND created_at >= ?`,
		string(models.OutcomeSuccess), since.UTC(),
	).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("audit avg latency: %w", err)
	}
	return avg.Float64, nil
}

// Cleanup deletes records older than the configured retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM dispatch_attempts WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}

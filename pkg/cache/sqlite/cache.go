package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pocketllm/pocketllm/pkg/models"
)

// ErrStorageUnavailable wraps every database failure of the cache.
// Callers treat it as "no cache" for the current request.
var ErrStorageUnavailable = errors.New("cache storage unavailable")

// Cache is an exact-match query cache backed by SQLite. Entries are keyed by
// fingerprint and never expire.
type Cache struct {
	db     *sql.DB
	hits   atomic.Int64
	misses atomic.Int64
	now    func() time.Time
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS query_cache (
	fingerprint TEXT PRIMARY KEY,
	query_text TEXT NOT NULL,
	response_text TEXT NOT NULL,
	model TEXT NOT NULL,
	hit_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	last_used_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_query_cache_hits ON query_cache(hit_count DESC);
`

// New creates a Cache with the given database path.
func New(dbPath string) (*Cache, error) {
	// Transactions begin IMMEDIATE: the store may write to the same file,
	// and a lookup must never upgrade a read lock mid-transaction.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

// Lookup returns the entry for fingerprint, if any. A hit bumps hit_count and
// last_used_at; the returned entry reflects the row as it was before the bump.
func (c *Cache) Lookup(ctx context.Context, fingerprint string) (*models.CacheEntry, bool, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, unavailable("begin lookup", err)
	}
	defer func() { _ = tx.Rollback() }()

	var e models.CacheEntry
	err = tx.QueryRowContext(ctx,
		`SELECT fingerprint, query_text, response_text, model, hit_count, created_at, last_used_at
		 FROM query_cache WHERE fingerprint = ?`,
		fingerprint,
	).Scan(&e.Fingerprint, &e.QueryText, &e.ResponseText, &e.Model, &e.HitCount, &e.CreatedAt, &e.LastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("lookup", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE query_cache SET hit_count = hit_count + 1, last_used_at = ? WHERE fingerprint = ?`,
		c.now(), fingerprint,
	); err != nil {
		return nil, false, unavailable("bump hit count", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, unavailable("commit lookup", err)
	}

	c.hits.Add(1)
	return &e, true, nil
}

// Upsert inserts a new entry with hit_count 0. If the fingerprint already
// exists only the usage accounting advances; stored content is never replaced.
func (c *Cache) Upsert(ctx context.Context, fingerprint, queryText, responseText, model string) error {
	now := c.now()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO query_cache (fingerprint, query_text, response_text, model, hit_count, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
			hit_count = query_cache.hit_count + 1,
			last_used_at = excluded.last_used_at`,
		fingerprint, queryText, responseText, model, now, now,
	)
	if err != nil {
		return unavailable("upsert", err)
	}
	return nil
}

// Stats returns cache totals and the top n entries by hit count.
func (c *Cache) Stats(ctx context.Context, top int) (models.CacheStats, error) {
	var stats models.CacheStats
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(hit_count), 0),
			COALESCE(SUM(LENGTH(CAST(query_text AS BLOB)) + LENGTH(CAST(response_text AS BLOB))), 0)
		 FROM query_cache`,
	).Scan(&stats.Entries, &stats.Hits, &stats.SizeBytes)
	if err != nil {
		return models.CacheStats{}, unavailable("stats", err)
	}

	stats.Misses = stats.Entries
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	stats.LookupHits = c.hits.Load()
	stats.LookupMisses = c.misses.Load()

	if top <= 0 {
		stats.Top = []models.CacheEntry{}
		return stats, nil
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT fingerprint, query_text, response_text, model, hit_count, created_at, last_used_at
		 FROM query_cache ORDER BY hit_count DESC, last_used_at DESC LIMIT ?`,
		top,
	)
	if err != nil {
		return models.CacheStats{}, unavailable("top entries", err)
	}
	defer rows.Close()

	stats.Top = make([]models.CacheEntry, 0, top)
	for rows.Next() {
		var e models.CacheEntry
		if err := rows.Scan(&e.Fingerprint, &e.QueryText, &e.ResponseText, &e.Model, &e.HitCount, &e.CreatedAt, &e.LastUsedAt); err != nil {
			return models.CacheStats{}, unavailable("scan top entry", err)
		}
		stats.Top = append(stats.Top, e)
	}
	if err := rows.Err(); err != nil {
		return models.CacheStats{}, unavailable("top entries", err)
	}
	return stats, nil
}

// Clear removes every entry and returns how many were deleted.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM query_cache`)
	if err != nil {
		return 0, unavailable("clear", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

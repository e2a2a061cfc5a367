package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pocketllm/pocketllm/pkg/models"
)

// ErrKeyNotFound is returned for API keys that do not exist or belong to
// another user. It matches ErrNotFound.
var ErrKeyNotFound = fmt.Errorf("api key %w", ErrNotFound)

// CreateAPIKey stores a new key for userID. Only the secret's hash and
// display prefix are persisted.
func (s *Store) CreateAPIKey(ctx context.Context, userID, name, secretHash, prefix string) (*models.APIKey, error) {
	k := &models.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		Prefix:    prefix,
		CreatedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, user_id, name, secret_hash, prefix, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		k.ID, k.UserID, k.Name, secretHash, k.Prefix, k.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	return k, nil
}

// ListAPIKeys returns the user's keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]models.APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, prefix, created_at, last_used_at FROM api_keys
		 WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	keys := []models.APIKey{}
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}

// APIKey returns one of the user's keys.
func (s *Store) APIKey(ctx context.Context, userID, id string) (*models.APIKey, error) {
	k, err := scanAPIKey(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, prefix, created_at, last_used_at FROM api_keys WHERE id = ? AND user_id = ?`,
		id, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	return k, err
}

// DeleteAPIKey revokes one of the user's keys.
func (s *Store) DeleteAPIKey(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if err := expectOne(res); err != nil {
		return ErrKeyNotFound
	}
	return nil
}

// UseAPIKey resolves a key by secret hash and stamps last_used_at.
func (s *Store) UseAPIKey(ctx context.Context, secretHash string) (*models.APIKey, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ? WHERE secret_hash = ?`, s.now(), secretHash,
	)
	if err != nil {
		return nil, fmt.Errorf("use api key: %w", err)
	}
	if err := expectOne(res); err != nil {
		return nil, ErrKeyNotFound
	}
	k, err := scanAPIKey(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, prefix, created_at, last_used_at FROM api_keys WHERE secret_hash = ?`,
		secretHash,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	return k, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row rowScanner) (*models.APIKey, error) {
	var (
		k        models.APIKey
		lastUsed sql.NullTime
	)
	if err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.Prefix, &k.CreatedAt, &lastUsed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan api key: %w", err)
	}
	if lastUsed.Valid {
		t := lastUsed.Time.UTC()
		k.LastUsedAt = &t
	}
	return &k, nil
}

// ChatStats lists every conversation with its owner and size, most recently
// updated first.
func (s *Store) ChatStats(ctx context.Context) ([]models.ChatStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.title, COALESCE(u.email, ''), COUNT(m.id),
			COALESCE(SUM(LENGTH(CAST(m.content AS BLOB))), 0)
		 FROM conversations c
		 LEFT JOIN users u ON u.id = c.user_id
		 LEFT JOIN messages m ON m.conversation_id = c.id
		 GROUP BY c.id
		 ORDER BY c.updated_at DESC, c.rowid DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("chat stats: %w", err)
	}
	defer rows.Close()

	out := []models.ChatStats{}
	for rows.Next() {
		var cs models.ChatStats
		if err := rows.Scan(&cs.ConversationID, &cs.Title, &cs.UserEmail, &cs.MessageCount, &cs.SizeBytes); err != nil {
			return nil, fmt.Errorf("scan chat stats: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/pocketllm/pocketllm/pkg/models"
)

// AppendMessages stores msgs in order and bumps the conversation's
// updated_at, all in one transaction. The returned messages carry their
// assigned IDs and timestamps.
func (s *Store) AppendMessages(ctx context.Context, conversationID string, msgs ...models.Message) ([]models.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		meta, err := encodeMetadata(m.Metadata)
		if err != nil {
			return nil, err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO messages (conversation_id, type, content, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
			conversationID, m.Role, m.Content, meta, now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert message: %w", err)
		}
		m.ID, err = res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("message id: %w", err)
		}
		m.ConversationID = conversationID
		m.CreatedAt = now
		out = append(out, m)
	}

	if err := touchConversation(ctx, tx, conversationID, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return out, nil
}

// Messages returns the conversation's log in chronological order.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, type, content, metadata, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var m models.Message
		var meta sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &meta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if meta.Valid && meta.String != "" {
			m.Metadata = &models.MessageMetadata{}
			if err := json.Unmarshal([]byte(meta.String), m.Metadata); err != nil {
				return nil, fmt.Errorf("decode message metadata: %w", err)
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func encodeMetadata(meta *models.MessageMetadata) (sql.NullString, error) {
	if meta == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode message metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// Counts summarizes stored activity for the admin dashboard.
type Counts struct {
	Users               int64
	Conversations       int64
	Messages            int64
	MessagesSince       int64
	ActiveConversations int64
}

// Counts returns totals plus the number of messages created at or after
// messagesSince and the number of distinct conversations with a message at
// or after activeSince.
func (s *Store) Counts(ctx context.Context, messagesSince, activeSince time.Time) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM messages WHERE created_at >= ?),
			(SELECT COUNT(DISTINCT conversation_id) FROM messages WHERE created_at >= ?)`,
		messagesSince.UTC(), activeSince.UTC(),
	).Scan(&c.Users, &c.Conversations, &c.Messages, &c.MessagesSince, &c.ActiveConversations)
	if err != nil {
		return Counts{}, fmt.Errorf("count activity: %w", err)
	}
	return c, nil
}

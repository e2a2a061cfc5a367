// Package chat turns an inbound user message into a persisted exchange,
// answering from the query cache when possible and dispatching to an
// inference endpoint otherwise.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pocketllm/pocketllm/pkg/fingerprint"
	"github.com/pocketllm/pocketllm/pkg/models"
	"github.com/pocketllm/pocketllm/pkg/store"
)

var (
	// ErrValidation is returned for empty message text.
	ErrValidation = errors.New("message is required")
	// ErrPersistence wraps failures of the conversation store. It is the only
	// error that fails an otherwise accepted message.
	ErrPersistence = errors.New("persistence failure")
)

const (
	// TopCachedQueries is how many entries CacheStats reports.
	TopCachedQueries = 5
	// DefaultModelLabel labels diagnostic replies.
	DefaultModelLabel = "Local-LLM"
)

// Cache is the query cache the orchestrator reads and fills.
type Cache interface {
	Lookup(ctx context.Context, fingerprint string) (*models.CacheEntry, bool, error)
	Upsert(ctx context.Context, fingerprint, queryText, responseText, model string) error
	Stats(ctx context.Context, top int) (models.CacheStats, error)
	Clear(ctx context.Context) (int64, error)
}

// Dispatcher delivers a message history to an inference endpoint.
type Dispatcher interface {
	Dispatch(ctx context.Context, messages []models.ChatMessage) models.DispatchResult
}

// Conversations is the persistence collaborator. Lookups are scoped by user
// and report store.ErrNotFound for conversations the user does not own.
type Conversations interface {
	CreateConversation(ctx context.Context, userID, title string) (*models.Conversation, error)
	GetConversation(ctx context.Context, userID, id string) (*models.Conversation, error)
	Messages(ctx context.Context, conversationID string) ([]models.Message, error)
	AppendMessages(ctx context.Context, conversationID string, msgs ...models.Message) ([]models.Message, error)
}

// AttemptRecorder receives every dispatch attempt, e.g. an audit log.
type AttemptRecorder interface {
	RecordAttempts(ctx context.Context, conversationID string, attempts []models.DispatchAttempt) error
}

// Orchestrator runs the per-message state machine. It is safe for
// concurrent use; no state is shared between calls except the cache.
type Orchestrator struct {
	dispatcher    Dispatcher
	conversations Conversations
	cache         Cache
	recorder      AttemptRecorder
	usage         UsageRecorder
	logger        *slog.Logger
	pending       sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache enables the query cache.
func WithCache(c Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithRecorder sets where dispatch attempts are reported.
func WithRecorder(r AttemptRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator.
func New(d Dispatcher, conv Conversations, opts ...Option) *Orchestrator {
	o := &Orchestrator{dispatcher: d, conversations: conv}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// SendMessage handles one inbound message. An empty conversationID starts a
// new conversation titled after the message.
func (o *Orchestrator) SendMessage(ctx context.Context, userID, conversationID, text string, useCache bool) (*models.SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrValidation
	}

	convID, err := o.resolveConversation(ctx, userID, conversationID, text)
	if err != nil {
		return nil, err
	}

	fp := fingerprint.Of(text)
	useCache = useCache && o.cache != nil

	var (
		answer string
		model  string
		cached bool
	)

	if useCache {
		entry, hit, err := o.cache.Lookup(ctx, fp)
		switch {
		case err != nil:
			o.logger.Warn("cache lookup failed, continuing without cache", "error", err)
			useCache = false
		case hit:
			answer, model, cached = entry.ResponseText, entry.Model, true
			if model == "" {
				model = "Local-LLM (cached)"
			}
			o.logger.Debug("cache hit", "fingerprint", fp, "hit_count", entry.HitCount)
		}
	}

	if !cached {
		history, err := o.history(ctx, convID, text)
		if err != nil {
			return nil, err
		}

		result := o.dispatcher.Dispatch(ctx, history)
		o.record(ctx, convID, result.Attempts)

		if result.Failed() {
			o.logger.Error("all inference endpoints failed", "conversation", convID, "attempts", len(result.Attempts))
			answer, model = Diagnostic(result), DefaultModelLabel
		} else {
			answer, model = result.Success.ResponseText, result.Success.Model
			if useCache {
				if err := o.cache.Upsert(ctx, fp, text, answer, model); err != nil {
					o.logger.Warn("cache upsert failed", "error", err)
				}
			}
		}
	}

	saved, err := o.conversations.AppendMessages(ctx, convID,
		models.Message{Role: models.RoleUser, Content: text},
		models.Message{
			Role:     models.RoleAssistant,
			Content:  answer,
			Metadata: &models.MessageMetadata{Model: model, Cached: cached},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: save exchange: %w", ErrPersistence, err)
	}

	return &models.SendResult{
		ConversationID: convID,
		UserMessage:    saved[0],
		AssistantMessage: models.AssistantMessage{
			Message: saved[1],
			Cached:  cached,
			Model:   model,
		},
	}, nil
}

func (o *Orchestrator) resolveConversation(ctx context.Context, userID, conversationID, text string) (string, error) {
	if conversationID == "" {
		c, err := o.conversations.CreateConversation(ctx, userID, Title(text))
		if err != nil {
			return "", fmt.Errorf("%w: create conversation: %w", ErrPersistence, err)
		}
		return c.ID, nil
	}

	_, err := o.conversations.GetConversation(ctx, userID, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("%w: load conversation: %w", ErrPersistence, err)
	}
	return conversationID, nil
}

// history returns the stored log in chronological order followed by the new
// user message.
func (o *Orchestrator) history(ctx context.Context, convID, text string) ([]models.ChatMessage, error) {
	msgs, err := o.conversations.Messages(ctx, convID)
	if err != nil {
		return nil, fmt.Errorf("%w: load history: %w", ErrPersistence, err)
	}
	out := make([]models.ChatMessage, 0, len(msgs)+1)
	for _, m := range msgs {
		role := models.RoleAssistant
		if m.Role == models.RoleUser {
			role = models.RoleUser
		}
		out = append(out, models.ChatMessage{Role: role, Content: m.Content})
	}
	return append(out, models.ChatMessage{Role: models.RoleUser, Content: text}), nil
}

func (o *Orchestrator) record(ctx context.Context, convID string, attempts []models.DispatchAttempt) {
	if o.recorder == nil || len(attempts) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		if err := o.recorder.RecordAttempts(ctx, convID, attempts); err != nil {
			o.logger.Warn("record dispatch attempts", "conversation", convID, "error", err)
		}
	}()
}

// Wait blocks until every pending attempt recording has finished.
func (o *Orchestrator) Wait() {
	o.pending.Wait()
}

// CacheStats reports the cache. A disabled or unavailable cache yields an
// empty report.
func (o *Orchestrator) CacheStats(ctx context.Context) models.CacheStats {
	empty := models.CacheStats{Top: []models.CacheEntry{}}
	if o.cache == nil {
		return empty
	}
	stats, err := o.cache.Stats(ctx, TopCachedQueries)
	if err != nil {
		o.logger.Warn("cache stats unavailable", "error", err)
		return empty
	}
	if stats.Top == nil {
		stats.Top = []models.CacheEntry{}
	}
	return stats
}

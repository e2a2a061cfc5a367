package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/pocketllm/pocketllm/pkg/models"
)

// ErrNoMessages is returned for a playground request without messages.
var ErrNoMessages = errors.New("messages are required")

// UsageRecorder receives token accounting of playground requests.
type UsageRecorder interface {
	Record(ctx context.Context, rec models.UsageRecord) error
}

// WithUsageRecorder sets where playground token usage is reported.
func WithUsageRecorder(u UsageRecorder) Option {
	return func(o *Orchestrator) { o.usage = u }
}

// Playground dispatches a caller-supplied history without touching the
// conversation store or the cache. Blank roles default to user.
func (o *Orchestrator) Playground(ctx context.Context, keyID string, msgs []models.ChatMessage) (*models.PlaygroundResult, error) {
	if len(msgs) == 0 {
		return nil, ErrNoMessages
	}
	history := make([]models.ChatMessage, len(msgs))
	for i, m := range msgs {
		role := strings.TrimSpace(m.Role)
		if role == "" {
			role = models.RoleUser
		}
		history[i] = models.ChatMessage{Role: role, Content: m.Content}
	}

	result := o.dispatcher.Dispatch(ctx, history)
	o.record(ctx, "", result.Attempts)

	if result.Failed() {
		o.logger.Error("playground: all inference endpoints failed", "key", keyID, "attempts", len(result.Attempts))
		return &models.PlaygroundResult{Result: Diagnostic(result), Model: DefaultModelLabel}, nil
	}

	success := result.Success
	o.recordUsage(ctx, keyID, success)
	return &models.PlaygroundResult{Result: success.ResponseText, Model: success.Model}, nil
}

func (o *Orchestrator) recordUsage(ctx context.Context, keyID string, success *models.DispatchSuccess) {
	if o.usage == nil || keyID == "" {
		return
	}
	rec := models.UsageRecord{KeyID: keyID, Model: success.Model}
	if u := success.Usage; u != nil {
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens = u.PromptTokens, u.CompletionTokens, u.TotalTokens
	}
	if err := o.usage.Record(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warn("record playground usage", "key", keyID, "error", err)
	}
}

// ClearCache drops every cached answer and reports how many were removed.
func (o *Orchestrator) ClearCache(ctx context.Context) (int64, error) {
	if o.cache == nil {
		return 0, nil
	}
	return o.cache.Clear(ctx)
}

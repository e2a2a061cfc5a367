package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pocketllm/pocketllm/pkg/models"
)

func newTestTracker(t *testing.T) *SQLiteTracker {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	tr, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestRecordAndQuery(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := models.UsageRecord{
		KeyID:            "key1",
		Model:            "llama-3",
		PromptTokens:     100,
		CompletionTokens: 50,
		TotalTokens:      150,
		CreatedAt:        now,
	}
	if err := tr.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}

	records, err := tr.QueryByKey(ctx, "key1", now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].TotalTokens != 150 || records[0].Model != "llama-3" {
		t.Errorf("unexpected record: %+v", records[0])
	}
}

func TestRecordDefaultsCreatedAt(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	fixed := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }

	if err := tr.Record(ctx, models.UsageRecord{KeyID: "k", Model: "m"}); err != nil {
		t.Fatal(err)
	}
	records, err := tr.QueryByKey(ctx, "k", fixed.Add(-time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || !records[0].CreatedAt.Equal(fixed) {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestTotalByKey(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for range 3 {
		_ = tr.Record(ctx, models.UsageRecord{
			KeyID: "key1", Model: "llama-3",
			PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150,
			CreatedAt: now,
		})
	}
	_ = tr.Record(ctx, models.UsageRecord{KeyID: "key2", Model: "llama-3", TotalTokens: 999, CreatedAt: now})
	_ = tr.Record(ctx, models.UsageRecord{KeyID: "key1", Model: "llama-3", TotalTokens: 500, CreatedAt: now.Add(-48 * time.Hour)})

	total, err := tr.TotalByKey(ctx, "key1", now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if total != 450 {
		t.Errorf("expected 450, got %d", total)
	}
}

func TestSummary(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = tr.Record(ctx, models.UsageRecord{KeyID: "key1", Model: "llama-3", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, CreatedAt: now})
	_ = tr.Record(ctx, models.UsageRecord{KeyID: "key1", Model: "llama-3", PromptTokens: 20, CompletionTokens: 5, TotalTokens: 25, CreatedAt: now})
	_ = tr.Record(ctx, models.UsageRecord{KeyID: "key1", Model: "mistral", PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2, CreatedAt: now})
	_ = tr.Record(ctx, models.UsageRecord{KeyID: "key2", Model: "llama-3", TotalTokens: 7, CreatedAt: now})

	all, err := tr.Summary(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(all))
	}

	mine, err := tr.Summary(ctx, "key1")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 groups for key1, got %d", len(mine))
	}
	llama := mine[0]
	if llama.Model != "llama-3" || llama.RequestCount != 2 || llama.TotalPrompt != 30 || llama.TotalTokens != 40 {
		t.Errorf("unexpected summary: %+v", llama)
	}
}

func TestSummaryEmpty(t *testing.T) {
	tr := newTestTracker(t)
	s, err := tr.Summary(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if s == nil || len(s) != 0 {
		t.Errorf("expected empty non-nil summary, got %#v", s)
	}
}

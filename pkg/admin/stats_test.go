package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pocketllm/pocketllm/pkg/models"
	"github.com/pocketllm/pocketllm/pkg/store"
)

type fakeCounter struct {
	counts        store.Counts
	err           error
	messagesSince time.Time
	activeSince   time.Time
}

func (f *fakeCounter) Counts(_ context.Context, messagesSince, activeSince time.Time) (store.Counts, error) {
	f.messagesSince, f.activeSince = messagesSince, activeSince
	return f.counts, f.err
}

type fakeCache models.CacheStats

func (f fakeCache) CacheStats(context.Context) models.CacheStats { return models.CacheStats(f) }

type fakeLatency float64

func (f fakeLatency) AvgLatency(context.Context, time.Time) (float64, error) { return float64(f), nil }

func TestCollect(t *testing.T) {
	counter := &fakeCounter{counts: store.Counts{
		Users: 3, Conversations: 7, Messages: 40, MessagesSince: 6, ActiveConversations: 2,
	}}
	cache := fakeCache{
		Entries: 4, Hits: 12, Misses: 4, HitRate: 0.75, SizeBytes: 900,
		Top: []models.CacheEntry{{QueryText: "What is 2+2?", HitCount: 9}},
	}
	s := New(counter, cache, fakeLatency(412.5))
	s.now = func() time.Time { return time.Date(2026, 5, 4, 15, 30, 0, 0, time.UTC) }

	got, err := s.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if got.TotalUsers != 3 || got.TotalConversations != 7 || got.TotalMessages != 40 {
		t.Errorf("unexpected totals: %+v", got)
	}
	if got.MessagesToday != 6 || got.ActiveConversations != 2 {
		t.Errorf("unexpected activity: %+v", got)
	}
	if got.CacheEntries != 4 || got.TotalCacheHits != 12 || got.TotalCacheMisses != 4 || got.CacheHitRate != 0.75 {
		t.Errorf("unexpected cache numbers: %+v", got)
	}
	if got.AvgResponseTimeMs != 412.5 {
		t.Errorf("avg response time = %v", got.AvgResponseTimeMs)
	}
	if len(got.TopCachedQueries) != 1 {
		t.Errorf("top queries = %+v", got.TopCachedQueries)
	}

	if want := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC); !counter.messagesSince.Equal(want) {
		t.Errorf("messagesSince = %v, want start of day", counter.messagesSince)
	}
	if want := time.Date(2026, 5, 3, 15, 30, 0, 0, time.UTC); !counter.activeSince.Equal(want) {
		t.Errorf("activeSince = %v, want 24h ago", counter.activeSince)
	}
}

func TestCollectWithoutAuditLog(t *testing.T) {
	s := New(&fakeCounter{}, fakeCache{}, nil)
	got, err := s.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.AvgResponseTimeMs != 0 {
		t.Errorf("expected 0 avg without audit log, got %v", got.AvgResponseTimeMs)
	}
	if got.TopCachedQueries == nil {
		t.Error("top queries should be an empty list, not nil")
	}
}

func TestCollectCounterError(t *testing.T) {
	s := New(&fakeCounter{err: errors.New("db locked")}, fakeCache{}, nil)
	if _, err := s.Collect(context.Background()); err == nil {
		t.Error("expected error")
	}
}

// Package admin assembles the dashboard summary.
package admin

import (
	"context"
	"time"

	"github.com/pocketllm/pocketllm/pkg/models"
	"github.com/pocketllm/pocketllm/pkg/store"
)

// ActiveWindow is how far back a conversation counts as active.
const ActiveWindow = 24 * time.Hour

// Counter reports stored activity.
type Counter interface {
	Counts(ctx context.Context, messagesSince, activeSince time.Time) (store.Counts, error)
}

// CacheReporter reports the query cache.
type CacheReporter interface {
	CacheStats(ctx context.Context) models.CacheStats
}

// LatencySource reports the mean successful dispatch latency.
type LatencySource interface {
	AvgLatency(ctx context.Context, since time.Time) (float64, error)
}

// Stats builds AdminStats from its sources.
type Stats struct {
	counter Counter
	cache   CacheReporter
	latency LatencySource
	now     func() time.Time
}

// New creates a Stats aggregator. latency may be nil when the audit log is
// disabled; the average response time is then reported as 0.
func New(counter Counter, cache CacheReporter, latency LatencySource) *Stats {
	return &Stats{
		counter: counter,
		cache:   cache,
		latency: latency,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Collect gathers the current dashboard numbers.
func (s *Stats) Collect(ctx context.Context) (models.AdminStats, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	counts, err := s.counter.Counts(ctx, today, now.Add(-ActiveWindow))
	if err != nil {
		return models.AdminStats{}, err
	}
	cache := s.cache.CacheStats(ctx)

	out := models.AdminStats{
		TotalUsers:          counts.Users,
		TotalConversations:  counts.Conversations,
		TotalMessages:       counts.Messages,
		MessagesToday:       counts.MessagesSince,
		ActiveConversations: counts.ActiveConversations,
		CacheEntries:        cache.Entries,
		CacheHitRate:        cache.HitRate,
		TotalCacheHits:      cache.Hits,
		TotalCacheMisses:    cache.Misses,
		CacheSizeBytes:      cache.SizeBytes,
		TopCachedQueries:    cache.Top,
	}
	if out.TopCachedQueries == nil {
		out.TopCachedQueries = []models.CacheEntry{}
	}

	if s.latency != nil {
		avg, err := s.latency.AvgLatency(ctx, now.Add(-ActiveWindow))
		if err != nil {
			return models.AdminStats{}, err
		}
		out.AvgResponseTimeMs = avg
	}
	return out, nil
}

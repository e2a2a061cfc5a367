package mcp

import (
	"fmt"
	"strings"

	"github.com/pocketllm/pocketllm/pkg/models"
)

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// FormatCacheStats renders cache stats as text.
func FormatCacheStats(stats models.CacheStats) string {
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n"+
		"  Size:     %d bytes\n",
		stats.Entries, stats.Hits, stats.Misses, stats.HitRate*100, stats.SizeBytes)
}

// FormatTopQueries renders cache entries as a text table.
func FormatTopQueries(entries []models.CacheEntry) string {
	if len(entries) == 0 {
		return "No cached queries."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%6s  %-20s %-20s %s\n", "Hits", "Model", "Last Used", "Query")
	b.WriteString(strings.Repeat("-", 90) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%6d  %-20s %-20s %s\n",
			e.HitCount, truncate(e.Model, 20), e.LastUsedAt.Format("2006-01-02 15:04:05"), truncate(e.QueryText, 60))
	}
	return b.String()
}

// FormatAdminStats renders the dashboard summary as text.
func FormatAdminStats(s models.AdminStats) string {
	var b strings.Builder
	b.WriteString("PocketLLM Statistics\n")
	fmt.Fprintf(&b, "  Users:                %d\n", s.TotalUsers)
	fmt.Fprintf(&b, "  Conversations:        %d (%d active in 24h)\n", s.TotalConversations, s.ActiveConversations)
	fmt.Fprintf(&b, "  Messages:             %d (%d today)\n", s.TotalMessages, s.MessagesToday)
	fmt.Fprintf(&b, "  Cache entries:        %d (%d bytes)\n", s.CacheEntries, s.CacheSizeBytes)
	fmt.Fprintf(&b, "  Cache hits/misses:    %d/%d (%.1f%%)\n", s.TotalCacheHits, s.TotalCacheMisses, s.CacheHitRate*100)
	fmt.Fprintf(&b, "  Avg response time:    %.0f ms\n", s.AvgResponseTimeMs)
	if len(s.TopCachedQueries) > 0 {
		b.WriteString("\nTop cached queries\n")
		b.WriteString(FormatTopQueries(s.TopCachedQueries))
	}
	return b.String()
}

// FormatEndpoints renders the candidate list in dispatch order.
func FormatEndpoints(candidates []models.EndpointCandidate) string {
	if len(candidates) == 0 {
		return "No inference endpoints."
	}
	var b strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %-55s %s\n", i+1, c.URL, c.Origin)
	}
	return b.String()
}

// FormatAttempts renders dispatch attempt records as a text table.
func FormatAttempts(records []models.AttemptRecord) string {
	if len(records) == 0 {
		return "No dispatch attempts found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-45s %-18s %8s  %s\n", "Time", "Endpoint", "Outcome", "Latency", "Detail")
	b.WriteString(strings.Repeat("-", 120) + "\n")
	for _, r := range records {
		fmt.Fprintf(&b, "%-20s %-45s %-18s %6dms  %s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), truncate(r.Endpoint, 45), r.Outcome, r.LatencyMs, truncate(r.Detail, 60))
	}
	return b.String()
}

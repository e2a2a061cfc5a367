package models

import "time"

// CacheEntry stores a cached assistant answer keyed by query fingerprint.
type CacheEntry struct {
	Fingerprint  string    `json:"fingerprint"`
	QueryText    string    `json:"query_text"`
	ResponseText string    `json:"response_text"`
	Model        string    `json:"model"`
	HitCount     int64     `json:"hit_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsedAt   time.Time `json:"last_used_at"`
}

// CacheStats reports cache contents and usage.
// Misses is derived: every entry was created by exactly one miss.
type CacheStats struct {
	Entries   int64        `json:"totalEntries"`
	Hits      int64        `json:"totalHits"`
	Misses    int64        `json:"totalMisses"`
	HitRate   float64      `json:"hitRate"`
	SizeBytes int64        `json:"totalSizeBytes"`
	Top       []CacheEntry `json:"topEntries"`

	// Process-local lookup counters since start.
	LookupHits   int64 `json:"lookupHits"`
	LookupMisses int64 `json:"lookupMisses"`
}

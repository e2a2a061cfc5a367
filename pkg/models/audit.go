package models

import "time"

// AttemptRecord is a persisted dispatch attempt.
type AttemptRecord struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Endpoint       string    `json:"endpoint"`
	Origin         string    `json:"origin"`
	Outcome        string    `json:"outcome"`
	Detail         string    `json:"detail,omitempty"`
	LatencyMs      int64     `json:"latency_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// AuditConfig controls the dispatch audit log.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxDetailSize int    `yaml:"max_detail_size"` // bytes
}

// AuditQueryOpts specifies filters for querying attempt records.
type AuditQueryOpts struct {
	Endpoint       string
	Outcome        string
	ConversationID string
	Since          time.Time
	Limit          int
}

// AuditStat holds aggregate attempt counts for an endpoint/outcome pair.
type AuditStat struct {
	Endpoint     string
	Outcome      string
	Count        int
	AvgLatencyMs float64
}

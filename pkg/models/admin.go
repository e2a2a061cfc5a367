package models

// AdminStats is the dashboard summary.
type AdminStats struct {
	TotalUsers          int64        `json:"totalUsers"`
	TotalConversations  int64        `json:"totalConversations"`
	TotalMessages       int64        `json:"totalMessages"`
	CacheEntries        int64        `json:"cacheEntries"`
	CacheHitRate        float64      `json:"cacheHitRate"`
	TotalCacheHits      int64        `json:"totalCacheHits"`
	TotalCacheMisses    int64        `json:"totalCacheMisses"`
	MessagesToday       int64        `json:"messagesToday"`
	ActiveConversations int64        `json:"activeConversations"`
	AvgResponseTimeMs   float64      `json:"avgResponseTime"`
	CacheSizeBytes      int64        `json:"cacheSize"`
	TopCachedQueries    []CacheEntry `json:"topCachedQueries"`
}

// ChatStats describes one conversation in the admin console.
type ChatStats struct {
	ConversationID string `json:"chatId"`
	Title          string `json:"title"`
	UserEmail      string `json:"userEmail"`
	MessageCount   int64  `json:"messageCount"`
	SizeBytes      int64  `json:"sizeBytes"`
}

package models

import "time"

// APIKey authenticates programmatic playground access. Only a hash of the
// secret is stored; Secret is filled once, in the response that creates it.
type APIKey struct {
	ID         string     `json:"keyId"`
	UserID     string     `json:"-"`
	Name       string     `json:"keyName"`
	Prefix     string     `json:"prefix"`
	Secret     string     `json:"apiKey,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
}

// UsageRecord is the token accounting of one playground request.
type UsageRecord struct {
	ID               int64     `json:"id"`
	KeyID            string    `json:"keyId"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"promptTokens"`
	CompletionTokens int       `json:"completionTokens"`
	TotalTokens      int       `json:"totalTokens"`
	CreatedAt        time.Time `json:"createdAt"`
}

// UsageSummary aggregates usage per key and model.
type UsageSummary struct {
	KeyID           string `json:"keyId"`
	Model           string `json:"model"`
	RequestCount    int64  `json:"requestCount"`
	TotalPrompt     int64  `json:"totalPromptTokens"`
	TotalCompletion int64  `json:"totalCompletionTokens"`
	TotalTokens     int64  `json:"totalTokens"`
}

// PlaygroundResult is the reply to a stateless playground request.
type PlaygroundResult struct {
	Result string `json:"result"`
	Model  string `json:"model"`
}

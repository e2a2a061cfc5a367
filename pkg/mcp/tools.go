package mcp

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/pocketllm/pocketllm/pkg/models"
)

const (
	defaultTopQueries = 5
	defaultLogLimit   = 50
)

type topQueriesArgs struct {
	Limit int `json:"limit"`
}

type dispatchLogArgs struct {
	Endpoint       string `json:"endpoint"`
	Outcome        string `json:"outcome"`
	ConversationID string `json:"conversation_id"`
	Since          string `json:"since"`
	Limit          int    `json:"limit"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"pocketllm_cache_stats":  handleCacheStats,
	"pocketllm_top_queries":  handleTopQueries,
	"pocketllm_admin_stats":  handleAdminStats,
	"pocketllm_endpoints":    handleEndpoints,
	"pocketllm_dispatch_log": handleDispatchLog,
}

func noArgs() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

var allTools = []ToolDefinition{
	{
		Name:        "pocketllm_cache_stats",
		Description: "Show query cache statistics (entries, hits, misses, hit rate, size).",
		InputSchema: noArgs(),
	},
	{
		Name:        "pocketllm_top_queries",
		Description: "List the most frequently reused cached queries.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "How many entries to return (optional, default 5)",
				},
			},
		},
	},
	{
		Name:        "pocketllm_admin_stats",
		Description: "Show the admin dashboard summary: users, conversations, messages, cache and response time.",
		InputSchema: noArgs(),
	},
	{
		Name:        "pocketllm_endpoints",
		Description: "List the inference endpoints in the order they are tried.",
		InputSchema: noArgs(),
	},
	{
		Name:        "pocketllm_dispatch_log",
		Description: "Search recorded inference dispatch attempts with optional filters.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"endpoint": map[string]any{
					"type":        "string",
					"description": "Filter by endpoint URL (optional)",
				},
				"outcome": map[string]any{
					"type":        "string",
					"description": "Filter by outcome: success, http-error, transport-error, timeout, malformed-response (optional)",
				},
				"conversation_id": map[string]any{
					"type":        "string",
					"description": "Filter by conversation ID (optional)",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional)",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum rows (optional, default 50)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.deps.Cache.Stats(ctx, 0)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(FormatCacheStats(stats))
}

func handleTopQueries(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.deps.Cache == nil {
		return textResult("Cache is not configured.")
	}
	var args topQueriesArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	if args.Limit <= 0 {
		args.Limit = defaultTopQueries
	}
	stats, err := s.deps.Cache.Stats(ctx, args.Limit)
	if err != nil {
		return errorResult("Error fetching cached queries: " + err.Error())
	}
	return textResult(FormatTopQueries(stats.Top))
}

func handleAdminStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Admin == nil {
		return textResult("Admin statistics are not configured.")
	}
	stats, err := s.deps.Admin.Collect(ctx)
	if err != nil {
		return errorResult("Error collecting admin stats: " + err.Error())
	}
	return textResult(FormatAdminStats(stats))
}

func handleEndpoints(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Endpoints == nil {
		return textResult("Endpoint resolution is not configured.")
	}
	return textResult(FormatEndpoints(s.deps.Endpoints.Resolve()))
}

func handleDispatchLog(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.deps.Audit == nil {
		return textResult("Audit logging is not configured.")
	}
	var args dispatchLogArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}

	opts := models.AuditQueryOpts{
		Endpoint:       args.Endpoint,
		Outcome:        args.Outcome,
		ConversationID: args.ConversationID,
		Limit:          args.Limit,
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultLogLimit
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	records, err := s.deps.Audit.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching dispatch log: " + err.Error())
	}
	return textResult(FormatAttempts(records))
}

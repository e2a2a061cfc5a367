package mcp

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/pocketllm/pocketllm/pkg/models"
)

type fakeCache struct {
	stats   models.CacheStats
	lastTop int
}

func (f *fakeCache) Stats(_ context.Context, top int) (models.CacheStats, error) {
	f.lastTop = top
	return f.stats, nil
}

type fakeAdmin struct{ stats models.AdminStats }

func (f fakeAdmin) Collect(context.Context) (models.AdminStats, error) { return f.stats, nil }

type fakeEndpoints []models.EndpointCandidate

func (f fakeEndpoints) Resolve() []models.EndpointCandidate { return f }

type fakeAudit struct {
	records []models.AttemptRecord
	opts    models.AuditQueryOpts
	err     error
}

func (f *fakeAudit) Query(_ context.Context, opts models.AuditQueryOpts) ([]models.AttemptRecord, error) {
	f.opts = opts
	return f.records, f.err
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	p := ToolCallParams{Name: name}
	if args != "" {
		p.Arguments = json.RawMessage(args)
	}
	params, _ := json.Marshal(p)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	return result
}

func TestInitialize(t *testing.T) {
	srv := New(Deps{}, "test", nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	json.Unmarshal(data, &result)

	if result.ProtocolVersion != ProtocolVersion {
		t.Errorf("protocol version = %s, want %s", result.ProtocolVersion, ProtocolVersion)
	}
	if result.ServerInfo.Name != "pocketllm" {
		t.Errorf("server name = %s, want pocketllm", result.ServerInfo.Name)
	}
}

func TestToolsList(t *testing.T) {
	srv := New(Deps{}, "test", nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	json.Unmarshal(data, &result)

	names := make(map[string]bool)
	for _, tool := range result.Tools {
		names[tool.Name] = true
	}
	for name := range toolHandlers {
		if !names[name] {
			t.Errorf("tool %s has a handler but is not listed", name)
		}
	}
	if len(result.Tools) != len(toolHandlers) {
		t.Errorf("got %d tools, want %d", len(result.Tools), len(toolHandlers))
	}
}

func TestToolCallNotConfigured(t *testing.T) {
	srv := New(Deps{}, "test", nil)
	for name := range toolHandlers {
		res := callTool(t, srv, name, "")
		if !strings.Contains(res.Content[0].Text, "not configured") {
			t.Errorf("%s: expected 'not configured', got: %s", name, res.Content[0].Text)
		}
	}
}

func TestToolCallCacheStats(t *testing.T) {
	cache := &fakeCache{stats: models.CacheStats{Entries: 42, Hits: 84, Misses: 42, HitRate: 84.0 / 126.0}}
	srv := New(Deps{Cache: cache}, "test", nil)

	text := callTool(t, srv, "pocketllm_cache_stats", "").Content[0].Text
	if !strings.Contains(text, "42") || !strings.Contains(text, "66.7%") {
		t.Errorf("unexpected cache stats output: %s", text)
	}
}

func TestToolCallTopQueries(t *testing.T) {
	cache := &fakeCache{stats: models.CacheStats{Top: []models.CacheEntry{
		{QueryText: "What is 2+2?", Model: "llama-3", HitCount: 17, LastUsedAt: time.Now()},
	}}}
	srv := New(Deps{Cache: cache}, "test", nil)

	text := callTool(t, srv, "pocketllm_top_queries", `{"limit":3}`).Content[0].Text
	if !strings.Contains(text, "What is 2+2?") || !strings.Contains(text, "17") {
		t.Errorf("unexpected output: %s", text)
	}
	if cache.lastTop != 3 {
		t.Errorf("limit = %d, want 3", cache.lastTop)
	}

	callTool(t, srv, "pocketllm_top_queries", "")
	if cache.lastTop != defaultTopQueries {
		t.Errorf("default limit = %d, want %d", cache.lastTop, defaultTopQueries)
	}
}

func TestToolCallAdminStats(t *testing.T) {
	srv := New(Deps{Admin: fakeAdmin{stats: models.AdminStats{TotalUsers: 12, AvgResponseTimeMs: 350}}}, "test", nil)
	text := callTool(t, srv, "pocketllm_admin_stats", "").Content[0].Text
	if !strings.Contains(text, "12") || !strings.Contains(text, "350 ms") {
		t.Errorf("unexpected output: %s", text)
	}
}

func TestToolCallEndpoints(t *testing.T) {
	eps := fakeEndpoints{
		{URL: "http://gpu-box:8080/v1/chat/completions", Origin: models.OriginExplicit},
		{URL: "http://localhost:8080/v1/chat/completions", Origin: models.OriginDefault},
	}
	text := callTool(t, New(Deps{Endpoints: eps}, "test", nil), "pocketllm_endpoints", "").Content[0].Text
	first := strings.Index(text, "gpu-box")
	second := strings.Index(text, "localhost")
	if first < 0 || second < 0 || first > second {
		t.Errorf("endpoints out of order: %s", text)
	}
}

func TestToolCallDispatchLog(t *testing.T) {
	a := &fakeAudit{records: []models.AttemptRecord{
		{Endpoint: "http://localhost:8080/v1/chat/completions", Outcome: "timeout", LatencyMs: 30000, Detail: "context deadline exceeded"},
	}}
	srv := New(Deps{Audit: a}, "test", nil)

	text := callTool(t, srv, "pocketllm_dispatch_log", `{"outcome":"timeout","since":"2026-01-02"}`).Content[0].Text
	if !strings.Contains(text, "timeout") || !strings.Contains(text, "30000ms") {
		t.Errorf("unexpected output: %s", text)
	}
	if a.opts.Outcome != "timeout" || a.opts.Limit != defaultLogLimit {
		t.Errorf("unexpected query opts: %+v", a.opts)
	}
	if !a.opts.Since.Equal(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("since = %v", a.opts.Since)
	}
}

func TestToolCallDispatchLogErrors(t *testing.T) {
	srv := New(Deps{Audit: &fakeAudit{err: errors.New("db locked")}}, "test", nil)
	if res := callTool(t, srv, "pocketllm_dispatch_log", `{"since":"yesterday"}`); !res.IsError {
		t.Error("expected isError for bad date")
	}
	if res := callTool(t, srv, "pocketllm_dispatch_log", ""); !res.IsError {
		t.Error("expected isError for query failure")
	}
}

func TestUnknownTool(t *testing.T) {
	res := callTool(t, New(Deps{}, "test", nil), "unknown_tool", "")
	if !res.IsError {
		t.Error("expected isError for unknown tool")
	}
}

func TestNotificationNoResponse(t *testing.T) {
	srv := New(Deps{}, "test", nil)

	line, _ := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
	line = append(line, '\n')

	var out bytes.Buffer
	_ = srv.Run(context.Background(), bytes.NewReader(line), &out)

	if out.Len() != 0 {
		t.Errorf("expected no output for notification, got: %s", out.String())
	}
}

func TestParseError(t *testing.T) {
	var out bytes.Buffer
	_ = New(Deps{}, "test", nil).Run(context.Background(), strings.NewReader("{not json\n"), &out)

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, out.String())
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("expected parse error, got %+v", resp)
	}
}

func TestUnknownMethod(t *testing.T) {
	resp := sendAndReceive(t, New(Deps{}, "test", nil), Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`9`),
		Method:  "unknown/method",
	})

	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}

package dispatch

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pocketllm/pocketllm/pkg/models"
)

type staticResolver []models.EndpointCandidate

func (s staticResolver) Resolve() []models.EndpointCandidate { return s }

func candidates(urls ...string) staticResolver {
	out := make(staticResolver, len(urls))
	for i, u := range urls {
		out[i] = models.EndpointCandidate{URL: u, Origin: models.OriginDefault}
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func completionHandler(model, content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := models.ChatCompletionResponse{
			Model: model,
			Choices: []models.Choice{
				{Message: models.ChatMessage{Role: models.RoleAssistant, Content: content}, FinishReason: "stop"},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestDispatchFallsThroughToThirdCandidate(t *testing.T) {
	var calls atomic.Int32
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"model not loaded"}}`, http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		completionHandler("llama-3", "  4  ")(w, r)
	}))
	defer good.Close()

	// Closed server yields a transport error.
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	d := New(candidates(deadURL, failing.URL, good.URL), WithLogger(quietLogger()))
	res := d.Dispatch(t.Context(), []models.ChatMessage{{Role: models.RoleUser, Content: "What is 2+2?"}})

	if res.Failed() {
		t.Fatalf("expected success, attempts: %+v", res.Attempts)
	}
	if res.Success.ResponseText != "4" {
		t.Errorf("response = %q, want trimmed %q", res.Success.ResponseText, "4")
	}
	if res.Success.Model != "llama-3" {
		t.Errorf("model = %q", res.Success.Model)
	}
	if len(res.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(res.Attempts))
	}
	want := []models.AttemptOutcome{models.OutcomeTransportError, models.OutcomeHTTPError, models.OutcomeSuccess}
	for i, a := range res.Attempts {
		if a.Outcome != want[i] {
			t.Errorf("attempt %d outcome = %s, want %s", i, a.Outcome, want[i])
		}
	}
	if got := res.Attempts[1].Detail; got != "LLM API returned 503: model not loaded" {
		t.Errorf("http error detail = %q", got)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 server calls, got %d", calls.Load())
	}
}

func TestDispatchStopsAtFirstSuccess(t *testing.T) {
	var second atomic.Int32
	first := httptest.NewServer(completionHandler("m", "ok"))
	defer first.Close()
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		second.Add(1)
	}))
	defer other.Close()

	d := New(candidates(first.URL, other.URL), WithLogger(quietLogger()))
	res := d.Dispatch(t.Context(), nil)
	if res.Failed() || len(res.Attempts) != 1 {
		t.Fatalf("expected a single successful attempt, got %+v", res.Attempts)
	}
	if second.Load() != 0 {
		t.Error("second candidate should not be contacted")
	}
}

func TestDispatchAllFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	d := New(candidates(bad.URL, bad.URL), WithLogger(quietLogger()))
	res := d.Dispatch(t.Context(), nil)
	if !res.Failed() {
		t.Fatal("expected failure")
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(res.Attempts))
	}
	last, ok := res.LastAttempt()
	if !ok || last.Detail != "LLM API returned 500: Internal Server Error" {
		t.Errorf("last detail = %q", last.Detail)
	}
}

func TestDispatchTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()
	fast := httptest.NewServer(completionHandler("m", "fast"))
	defer fast.Close()

	d := New(candidates(slow.URL, fast.URL), WithTimeout(50*time.Millisecond), WithLogger(quietLogger()))
	res := d.Dispatch(t.Context(), nil)
	if res.Failed() {
		t.Fatalf("expected fallback success, got %+v", res.Attempts)
	}
	if res.Attempts[0].Outcome != models.OutcomeTimeout {
		t.Errorf("first outcome = %s, want timeout", res.Attempts[0].Outcome)
	}
}

func TestDispatchMalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>hello</html>"},
		{"no choices", `{"model":"m","choices":[]}`},
		{"blank content", `{"choices":[{"message":{"role":"assistant","content":"   "}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			res := New(candidates(srv.URL), WithLogger(quietLogger())).Dispatch(t.Context(), nil)
			if !res.Failed() {
				t.Fatal("expected failure")
			}
			if res.Attempts[0].Outcome != models.OutcomeMalformed {
				t.Errorf("outcome = %s, want malformed-response", res.Attempts[0].Outcome)
			}
		})
	}
}

func TestDispatchDefaultModelLabel(t *testing.T) {
	srv := httptest.NewServer(completionHandler("", "hi"))
	defer srv.Close()

	res := New(candidates(srv.URL), WithLogger(quietLogger())).Dispatch(t.Context(), nil)
	if res.Failed() {
		t.Fatal("expected success")
	}
	if res.Success.Model != DefaultModelLabel {
		t.Errorf("model = %q, want %q", res.Success.Model, DefaultModelLabel)
	}
}

func TestDispatchRequestBody(t *testing.T) {
	var got models.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		completionHandler("m", "ok")(w, r)
	}))
	defer srv.Close()

	history := []models.ChatMessage{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: "hi there"},
		{Role: models.RoleUser, Content: "how are you?"},
	}
	New(candidates(srv.URL), WithLogger(quietLogger())).Dispatch(t.Context(), history)

	if got.Model != RequestModel || got.MaxTokens != MaxTokens {
		t.Errorf("unexpected model/max_tokens: %+v", got)
	}
	if got.Temperature != Temperature || got.TopP != TopP {
		t.Errorf("unexpected sampling params: %+v", got)
	}
	if len(got.Messages) != 3 || got.Messages[2].Content != "how are you?" {
		t.Errorf("history not forwarded in order: %+v", got.Messages)
	}
}

func TestDispatchEncodeFailureReportsEveryCandidate(t *testing.T) {
	orig := encodeRequest
	encodeRequest = func(any) ([]byte, error) { return nil, errors.New("boom") }
	t.Cleanup(func() { encodeRequest = orig })

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	d := New(candidates(srv.URL, "http://127.0.0.1:1/v1/chat/completions"), WithLogger(quietLogger()))
	res := d.Dispatch(t.Context(), []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}})

	if !res.Failed() {
		t.Fatal("expected failure")
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("expected one attempt per candidate, got %d", len(res.Attempts))
	}
	for _, a := range res.Attempts {
		if a.Outcome != models.OutcomeTransportError || !strings.Contains(a.Detail, "boom") {
			t.Errorf("unexpected attempt: %+v", a)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("no endpoint should be contacted, got %d calls", calls.Load())
	}
}

func TestDispatchReportsTokenUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.ChatCompletionResponse{
			Model:   "llama-3",
			Choices: []models.Choice{{Message: models.ChatMessage{Role: models.RoleAssistant, Content: "ok"}}},
			Usage:   &models.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
		})
	}))
	defer srv.Close()

	res := New(candidates(srv.URL), WithLogger(quietLogger())).
		Dispatch(t.Context(), []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}})
	if res.Failed() {
		t.Fatalf("expected success: %+v", res.Attempts)
	}
	if res.Success.Usage == nil || res.Success.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", res.Success.Usage)
	}
}

// Package dispatch delivers a conversation to the first inference endpoint
// that answers successfully.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/pocketllm/pocketllm/pkg/models"
)

// Fixed generation budget sent with every request.
const (
	RequestModel = "local-model"
	MaxTokens    = 512
	Temperature  = 0.7
	TopP         = 0.9
)

const (
	// DefaultTimeout bounds a single attempt against one endpoint.
	DefaultTimeout = 30 * time.Second
	// DefaultModelLabel is used when a backend omits the model name.
	DefaultModelLabel = "Local-LLM"
)

// encodeRequest marshals the inference request body.
var encodeRequest = json.Marshal

// Resolver supplies the ordered candidate list for one dispatch call.
type Resolver interface {
	Resolve() []models.EndpointCandidate
}

// Dispatcher tries candidates strictly in order, one attempt each.
type Dispatcher struct {
	resolver Resolver
	client   *http.Client
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient sets the client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher over the given resolver.
func New(r Resolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		resolver: r,
		client:   &http.Client{},
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Dispatch sends the full message history to each candidate in turn and stops
// at the first well-formed success. The result always carries every attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, messages []models.ChatMessage) models.DispatchResult {
	candidates := d.resolver.Resolve()
	result := models.DispatchResult{Attempts: make([]models.DispatchAttempt, 0, len(candidates))}

	body, err := encodeRequest(models.ChatCompletionRequest{
		Model:       RequestModel,
		Messages:    messages,
		MaxTokens:   MaxTokens,
		Temperature: Temperature,
		TopP:        TopP,
	})
	if err != nil {
		d.logger.Error("encode inference request", "error", err)
		// Every candidate fails without being contacted.
		now := time.Now().UTC()
		for _, c := range candidates {
			result.Attempts = append(result.Attempts, models.DispatchAttempt{
				Endpoint:  c,
				StartedAt: now,
				Outcome:   models.OutcomeTransportError,
				Detail:    fmt.Sprintf("encode request: %v", err),
			})
		}
		return result
	}

	for _, c := range candidates {
		d.logger.Debug("attempting inference endpoint", "endpoint", c.URL, "origin", c.Origin)
		attempt, success := d.attempt(ctx, c, body)
		result.Attempts = append(result.Attempts, attempt)
		if success != nil {
			d.logger.Info("inference endpoint answered", "endpoint", c.URL, "model", success.Model, "latency", attempt.Latency)
			result.Success = success
			break
		}
		d.logger.Warn("inference endpoint failed, trying next",
			"endpoint", c.URL, "outcome", attempt.Outcome, "detail", attempt.Detail)
	}
	return result
}

func (d *Dispatcher) attempt(ctx context.Context, c models.EndpointCandidate, body []byte) (models.DispatchAttempt, *models.DispatchSuccess) {
	started := time.Now()
	a := models.DispatchAttempt{Endpoint: c, StartedAt: started.UTC()}

	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	res, err := doUpstreamRequest(attemptCtx, d.client, c.URL, body)
	a.Latency = time.Since(started)
	if err != nil {
		a.Outcome = classifyTransportError(err)
		a.Detail = err.Error()
		return a, nil
	}

	if res.statusCode < 200 || res.statusCode >= 300 {
		a.Outcome = models.OutcomeHTTPError
		a.Detail = httpErrorDetail(res)
		return a, nil
	}

	success, err := parseCompletion(res.body)
	if err != nil {
		a.Outcome = models.OutcomeMalformed
		a.Detail = err.Error()
		return a, nil
	}
	a.Outcome = models.OutcomeSuccess
	a.Detail = success.Model
	return a, success
}

// upstreamResult holds the response from a single upstream attempt.
type upstreamResult struct {
	statusCode int
	body       []byte
}

// doUpstreamRequest posts body to endpoint and reads the whole response.
func doUpstreamRequest(ctx context.Context, client *http.Client, endpoint string, body []byte) (*upstreamResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &upstreamResult{statusCode: resp.StatusCode, body: respBody}, nil
}

func classifyTransportError(err error) models.AttemptOutcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.OutcomeTimeout
	}
	return models.OutcomeTransportError
}

func httpErrorDetail(res *upstreamResult) string {
	msg := http.StatusText(res.statusCode)
	var errResp models.ErrorResponse
	if err := json.Unmarshal(res.body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}
	return fmt.Sprintf("LLM API returned %d: %s", res.statusCode, msg)
}

func parseCompletion(body []byte) (*models.DispatchSuccess, error) {
	var resp models.ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("invalid response body: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("response has no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, errors.New("response has empty content")
	}
	model := resp.Model
	if model == "" {
		model = DefaultModelLabel
	}
	return &models.DispatchSuccess{ResponseText: content, Model: model, Usage: resp.Usage}, nil
}

package models

import "time"

// EndpointOrigin tags where a candidate endpoint came from.
type EndpointOrigin string

const (
	OriginExplicit EndpointOrigin = "explicit-configuration"
	OriginDefault  EndpointOrigin = "well-known-default"
)

// EndpointCandidate is one inference endpoint to try.
type EndpointCandidate struct {
	URL    string         `json:"url"`
	Origin EndpointOrigin `json:"origin"`
}

// AttemptOutcome classifies a single dispatch attempt.
type AttemptOutcome string

const (
	OutcomeSuccess        AttemptOutcome = "success"
	OutcomeHTTPError      AttemptOutcome = "http-error"
	OutcomeTransportError AttemptOutcome = "transport-error"
	OutcomeTimeout        AttemptOutcome = "timeout"
	OutcomeMalformed      AttemptOutcome = "malformed-response"
)

// DispatchAttempt records one request to one candidate.
type DispatchAttempt struct {
	Endpoint  EndpointCandidate `json:"endpoint"`
	StartedAt time.Time         `json:"started_at"`
	Latency   time.Duration     `json:"latency"`
	Outcome   AttemptOutcome    `json:"outcome"`
	Detail    string            `json:"detail"`
}

// DispatchSuccess carries the generated answer of the winning candidate.
type DispatchSuccess struct {
	ResponseText string `json:"response_text"`
	Model        string `json:"model"`
	// Usage is nil when the backend does not report token counts.
	Usage *Usage `json:"usage,omitempty"`
}

// DispatchResult is the outcome of one dispatch call. Success is nil when
// every candidate failed; Attempts is always the ordered list of attempts.
type DispatchResult struct {
	Success  *DispatchSuccess  `json:"success,omitempty"`
	Attempts []DispatchAttempt `json:"attempts"`
}

// Failed reports whether every candidate failed.
func (r DispatchResult) Failed() bool {
	return r.Success == nil
}

// LastAttempt returns the final attempt, if any.
func (r DispatchResult) LastAttempt() (DispatchAttempt, bool) {
	if len(r.Attempts) == 0 {
		return DispatchAttempt{}, false
	}
	return r.Attempts[len(r.Attempts)-1], true
}

// Package endpoint resolves the ordered list of inference endpoints to try.
package endpoint

import (
	"strings"

	"github.com/pocketllm/pocketllm/pkg/config"
	"github.com/pocketllm/pocketllm/pkg/models"
)

// CompletionsPath is appended to base URLs to reach the chat completions API.
const CompletionsPath = "/v1/chat/completions"

// Defaults are the loopback addresses common local inference servers
// (llama.cpp, LM Studio, vLLM) listen on, in the order they are tried.
var Defaults = []string{
	"http://localhost:8080",
	"http://127.0.0.1:8080",
	"http://host.docker.internal:8080",
}

// Resolver builds candidate lists from configuration.
type Resolver struct {
	override string
}

// New creates a Resolver from the given configuration.
func New(cfg *config.Config) *Resolver {
	return &Resolver{override: cfg.LLM.ServerURL}
}

// Resolve returns the explicitly configured endpoint, if any, followed by
// the well-known defaults. It performs no network access.
func (r *Resolver) Resolve() []models.EndpointCandidate {
	candidates := make([]models.EndpointCandidate, 0, len(Defaults)+1)
	if base := strings.TrimSpace(r.override); base != "" {
		candidates = append(candidates, models.EndpointCandidate{
			URL:    completionsURL(base),
			Origin: models.OriginExplicit,
		})
	}
	for _, base := range Defaults {
		candidates = append(candidates, models.EndpointCandidate{
			URL:    completionsURL(base),
			Origin: models.OriginDefault,
		})
	}
	return candidates
}

func completionsURL(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, CompletionsPath) {
		return base
	}
	return base + CompletionsPath
}

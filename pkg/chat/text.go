package chat

import (
	"fmt"
	"strings"

	"github.com/pocketllm/pocketllm/pkg/config"
	"github.com/pocketllm/pocketllm/pkg/models"
)

const (
	maxTitleRunes = 50
	titleEllipsis = "..."
)

// Title derives a conversation title from its first message.
func Title(text string) string {
	r := []rune(text)
	if len(r) <= maxTitleRunes {
		return text
	}
	return string(r[:maxTitleRunes-len(titleEllipsis)]) + titleEllipsis
}

// Diagnostic renders the reply used when no inference endpoint answered.
func Diagnostic(result models.DispatchResult) string {
	var b strings.Builder
	b.WriteString("I can't connect to your local LLM server. I tried these URLs:\n\n")
	for i, a := range result.Attempts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, a.Endpoint.URL)
	}

	b.WriteString("\n**SOLUTION:** Point the server at your LLM with an environment variable:\n")
	fmt.Fprintf(&b, "- Variable name: `%s`\n", config.EnvServerURL)
	b.WriteString("- Value: the base URL of your LLM server\n\n")
	b.WriteString("**Running the LLM on another machine:**\n")
	b.WriteString("1. Make it listen on all interfaces: `./llama-cpp-server --host 0.0.0.0 --port 8080`\n")
	fmt.Fprintf(&b, "2. Use its reachable address or a tunnel as %s\n\n", config.EnvServerURL)
	b.WriteString("**Quick test:** open http://YOUR_IP:8080/v1/models from another device.\n\n")

	detail := "Connection failed"
	if last, ok := result.LastAttempt(); ok && last.Detail != "" {
		detail = last.Detail
	}
	b.WriteString("Error details: " + detail)
	return b.String()
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pocketllm/pocketllm/pkg/config"
	"github.com/spf13/cobra"
)

var version = "dev"

const defaultConfigPath = "pocketllm.yaml"

func main() {
	root := &cobra.Command{
		Use:     "pocketllm",
		Short:   "PocketLLM - chat front end for a local LLM server",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newCacheCmd(),
		newStatsCmd(),
		newUsageCmd(),
		newAuditCmd(),
		newEndpointsCmd(),
		newUserCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the config file.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pocketllm/pocketllm/pkg/audit"
	"github.com/pocketllm/pocketllm/pkg/mcp"
	"github.com/pocketllm/pocketllm/pkg/models"
	"github.com/spf13/cobra"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the dispatch attempt log",
	}

	cmd.AddCommand(
		newAuditSearchCmd(),
		newAuditStatsCmd(),
		newAuditCleanupCmd(),
	)
	return cmd
}

func newAuditSearchCmd() *cobra.Command {
	var (
		configPath   string
		endpointURL  string
		outcome      string
		conversation string
		since        string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search dispatch attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := models.AuditQueryOpts{
				Endpoint:       endpointURL,
				Outcome:        outcome,
				ConversationID: conversation,
				Limit:          limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			records, err := l.Query(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Println(strings.TrimRight(mcp.FormatAttempts(records), "\n"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&endpointURL, "endpoint", "", "filter by endpoint URL")
	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome (success, http-error, transport-error, timeout, malformed-response)")
	cmd.Flags().StringVar(&conversation, "conversation", "", "filter by conversation ID")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max records to return")

	return cmd
}

func newAuditStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show attempt counts and latency by endpoint and outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := l.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Print(formatAuditStats(stats))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func newAuditCleanupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete attempts older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := l.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d dispatch attempts.\n", deleted)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func openAuditLogger(configPath string) (*audit.Logger, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Audit.Enabled {
		return nil, nil, fmt.Errorf("audit log is disabled in %s", configPath)
	}

	l, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit db: %w", err)
	}
	return l, func() { _ = l.Close() }, nil
}

func formatAuditStats(stats []models.AuditStat) string {
	if len(stats) == 0 {
		return "No dispatch attempts recorded.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-45s %-18s %8s %12s\n", "ENDPOINT", "OUTCOME", "COUNT", "AVG LATENCY")
	b.WriteString(strings.Repeat("-", 86) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-45s %-18s %8d %10.0fms\n", s.Endpoint, s.Outcome, s.Count, s.AvgLatencyMs)
	}
	return b.String()
}

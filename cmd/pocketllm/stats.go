package main

import (
	"context"
	"fmt"

	"github.com/pocketllm/pocketllm/pkg/mcp"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			src, err := openSources(cfg, newLogger(cfg.Log.Level))
			if err != nil {
				return err
			}
			defer src.close()

			stats, err := src.adminStats().Collect(context.Background())
			if err != nil {
				return err
			}
			fmt.Print(mcp.FormatAdminStats(stats))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

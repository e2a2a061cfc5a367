package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketllm/pocketllm/pkg/endpoint"
	"github.com/pocketllm/pocketllm/pkg/mcp"
	"github.com/spf13/cobra"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve PocketLLM diagnostics as an MCP server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log.Level)

			src, err := openSources(cfg, logger)
			if err != nil {
				return err
			}
			defer src.close()

			deps := mcp.Deps{
				Admin:     src.adminStats(),
				Endpoints: endpoint.New(cfg),
			}
			if src.cache != nil {
				deps.Cache = src.cache
			}
			if src.audit != nil {
				deps.Audit = src.audit
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return mcp.New(deps, version, logger).Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

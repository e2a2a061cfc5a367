package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/pocketllm/pocketllm/pkg/admin"
	"github.com/pocketllm/pocketllm/pkg/audit"
	"github.com/pocketllm/pocketllm/pkg/auth"
	cachepkg "github.com/pocketllm/pocketllm/pkg/cache/sqlite"
	"github.com/pocketllm/pocketllm/pkg/chat"
	"github.com/pocketllm/pocketllm/pkg/config"
	"github.com/pocketllm/pocketllm/pkg/dispatch"
	"github.com/pocketllm/pocketllm/pkg/endpoint"
	"github.com/pocketllm/pocketllm/pkg/server"
	"github.com/pocketllm/pocketllm/pkg/store"
	"github.com/pocketllm/pocketllm/pkg/tracker"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the PocketLLM HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.ValidateServe(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			logger := newLogger(cfg.Log.Level)

			st, err := store.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			defer func() { _ = st.Close() }()

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init usage tracker: %w", err)
			}
			defer func() { _ = tr.Close() }()

			opts := []chat.Option{chat.WithLogger(logger), chat.WithUsageRecorder(tr)}

			if cfg.Cache.Enabled {
				cache, err := cachepkg.New(cfg.DBPath)
				if err != nil {
					logger.Warn("query cache unavailable, continuing without it", "error", err)
				} else {
					defer func() { _ = cache.Close() }()
					opts = append(opts, chat.WithCache(cache))
				}
			}

			var latency admin.LatencySource
			if cfg.Audit.Enabled {
				al, err := audit.New(cfg.Audit)
				if err != nil {
					return fmt.Errorf("init audit log: %w", err)
				}
				defer func() { _ = al.Close() }()
				opts = append(opts, chat.WithRecorder(al))
				latency = al
			}

			d := dispatch.New(endpoint.New(cfg), dispatch.WithLogger(logger))
			o := chat.New(d, st, opts...)
			defer o.Wait()

			a := auth.New(st, cfg.Auth.Secret, cfg.Auth.SessionTTL)
			stats := admin.New(st, o, latency)
			srv := server.New(cfg, a, st, o, stats, logger, server.WithUsage(tr))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("starting pocketllm", "config", configPath, "listen", cfg.Listen, "cache", cfg.Cache.Enabled, "audit", cfg.Audit.Enabled)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

package main

import (
	"context"
	"fmt"

	cachepkg "github.com/pocketllm/pocketllm/pkg/cache/sqlite"
	"github.com/pocketllm/pocketllm/pkg/mcp"
	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the query cache",
	}

	openCache := func() (*cachepkg.Cache, error) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, err
		}
		return cachepkg.New(cfg.DBPath)
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			stats, err := c.Stats(context.Background(), 0)
			if err != nil {
				return err
			}
			fmt.Print(mcp.FormatCacheStats(stats))
			return nil
		},
	}

	var limit int
	topCmd := &cobra.Command{
		Use:   "top",
		Short: "Show the most frequently reused cached queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			stats, err := c.Stats(context.Background(), limit)
			if err != nil {
				return err
			}
			fmt.Println(mcp.FormatTopQueries(stats.Top))
			return nil
		},
	}
	topCmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of entries to show")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cache entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			n, err := c.Clear(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Cleared %d cache entries.\n", n)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.AddCommand(statsCmd, topCmd, clearCmd)
	return cmd
}

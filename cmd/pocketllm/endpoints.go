package main

import (
	"fmt"

	"github.com/pocketllm/pocketllm/pkg/endpoint"
	"github.com/pocketllm/pocketllm/pkg/mcp"
	"github.com/spf13/cobra"
)

func newEndpointsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "List the inference endpoints tried, in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			fmt.Print(mcp.FormatEndpoints(endpoint.New(cfg).Resolve()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pocketllm/pocketllm/pkg/tracker"
	"github.com/spf13/cobra"
)

func newUsageCmd() *cobra.Command {
	var (
		configPath string
		keyID      string
	)

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show playground token usage per API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer tr.Close()

			summaries, err := tr.Summary(context.Background(), keyID)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No usage recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tMODEL\tREQUESTS\tPROMPT\tCOMPLETION\tTOTAL")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
					s.KeyID, s.Model, s.RequestCount, s.TotalPrompt, s.TotalCompletion, s.TotalTokens)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&keyID, "key", "", "filter by API key ID")
	return cmd
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/pocketllm/pocketllm/pkg/auth"
	"github.com/pocketllm/pocketllm/pkg/store"
	"github.com/spf13/cobra"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserCreateCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var (
		configPath string
		email      string
		password   string
		name       string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			st, err := store.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			defer func() { _ = st.Close() }()

			// The token is discarded, so any secret will do when none is configured.
			secret := cfg.Auth.Secret
			if secret == "" {
				secret = "cli"
			}
			u, _, err := auth.New(st, secret, cfg.Auth.SessionTTL).SignUp(context.Background(), email, password, name)
			if errors.Is(err, store.ErrUserExists) {
				return fmt.Errorf("a user with email %q already exists", email)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Created user %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

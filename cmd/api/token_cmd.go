package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mohammadpnp/alumni-import/internal/config"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/auth"
)

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		userID string
		staff  bool
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token signed with the configured secret (local testing)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := uuid.Parse(userID); err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			token, err := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer).GenerateToken(userID, staff, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User UUID (required)")
	cmd.Flags().BoolVar(&staff, "staff", false, "Mark the caller as platform staff")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

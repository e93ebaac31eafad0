package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"briefsmith/internal/daemon"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a signed API token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			secret := strings.TrimSpace(cfg.API.JWTSecret)
			if secret == "" {
				return errors.New("api.jwt_secret is not configured (or set BRIEFSMITH_JWT_SECRET)")
			}
			token, err := daemon.IssueToken(secret, cfg.API.JWTIssuer, strings.TrimSpace(args[0]), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

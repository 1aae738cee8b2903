package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storefront-service/internal/session"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a bearer token that binds requests to a user cart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if cfg.Session.JWTSecret == "" {
			return errors.New("JWT_SECRET is not set")
		}
		sessions := session.NewManager(nil, session.Options{JWTSecret: cfg.Session.JWTSecret}, logger)
		token, err := sessions.IssueToken(args[0], tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}

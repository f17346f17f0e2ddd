package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PaulBabatuyi/inboxd/internal/auth"
	"github.com/PaulBabatuyi/inboxd/internal/config"
	"github.com/PaulBabatuyi/inboxd/internal/logging"
)

func buildRootCmd() *cobra.Command {
	var envFile string
	rootCmd := &cobra.Command{
		Use:   "inboxd",
		Short: "Real-time direct messages and notifications",
		Long: `inboxd keeps authenticated client connections open over gRPC or
WebSocket, delivers direct messages with acknowledgement, relays typing and
read receipts, and fans out notifications raised by other services.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "read environment from this file (default: .env if present)")

	rootCmd.AddCommand(
		buildServeCmd(&envFile),
		buildTokenCmd(&envFile),
		buildHashKeyCmd(),
	)
	return rootCmd
}

func buildServeCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC and HTTP servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			return a.run(ctx)
		},
	}
}

func buildTokenCmd(envFile *string) *cobra.Command {
	var userID string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user (development and service testing)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(userID) == "" {
				return errors.New("--user is required")
			}
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			if ttl > 0 {
				cfg.TokenTTL = ttl
			}
			token, expiresAt, err := newTokenManager(cfg).GenerateToken(userID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to issue the token for")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: TOKEN_TTL)")
	return cmd
}

func buildHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key KEY",
		Short: "Print the bcrypt hash of a service key for SERVICE_KEY_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashServiceKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitovidale/video-insight-service/config"
	"github.com/vitovidale/video-insight-service/infrastructure"
	"github.com/vitovidale/video-insight-service/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "insightd",
		Short:         "Video insight API and processing worker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("INSIGHT_CONFIG"), "TOML configuration file")

	root.AddCommand(
		newRunCommand("serve", "Run the HTTP API and the processing worker", &configPath, true, true),
		newRunCommand("api", "Run the HTTP API only", &configPath, true, false),
		newRunCommand("worker", "Run the processing worker only", &configPath, false, true),
		newMigrateCommand(&configPath),
		newTokenCommand(&configPath),
	)
	return root
}

// loadRuntime reads the configuration and builds the logger every command shares.
func loadRuntime(configPath string) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func newRunCommand(use, short string, configPath *string, api, worker bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			if worker {
				if err := cfg.ValidateWorker(); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := buildApp(ctx, cfg, log, worker)
			if err != nil {
				return err
			}
			defer app.Close()

			log.Info("insightd starting", "command", use, "storage", cfg.Storage.Driver, "queue", cfg.Queue.Driver, "artifacts", cfg.Artifacts.Driver)
			return app.Run(ctx, api, worker)
		},
	}
}

func newMigrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			if cfg.Storage.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate needs storage.driver %q, got %q", config.DriverPostgres, cfg.Storage.Driver)
			}

			db, err := infrastructure.OpenPostgres(cmd.Context(), cfg.Postgres, log)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := infrastructure.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			log.Info("schema applied", "database", cfg.Postgres.Name)
			return nil
		},
	}
}

func newTokenCommand(configPath *string) *cobra.Command {
	var (
		username string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a registered-user bearer token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			verifier, err := infrastructure.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
			if err != nil {
				return err
			}
			token, err := verifier.IssueToken(args[0], username, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

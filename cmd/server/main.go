package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"notiontools/dashboard-gateway/internal/app"
	"notiontools/dashboard-gateway/internal/config"
	"notiontools/dashboard-gateway/internal/observability"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatalf("%v", err)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:           "dashboard-gateway",
		Short:         "Session-guarded gateway for the Notion and WeRead dashboards",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.LoadEnvFile(envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Env file to load before reading configuration (default ./.env when present)")

	cmd.AddCommand(serveCmd(), waitDBCmd(), versionCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(cfg, observability.NewLogger(cfg.LogLevel), Version)
			if err != nil {
				return fmt.Errorf("create app: %w", err)
			}
			if err := a.Run(ctx); err != nil {
				return fmt.Errorf("run app: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")
	return cmd
}

// waitDBCmd blocks until Postgres answers a ping. CI runs it before the
// integration tests.
func waitDBCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "wait-db",
		Short: "Wait until Postgres accepts connections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
			if dsn == "" {
				dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
			}
			if dsn == "" {
				return fmt.Errorf("TEST_POSTGRES_DSN or DATABASE_URL is required")
			}
			if timeout <= 0 {
				return fmt.Errorf("invalid timeout %s", timeout)
			}

			db, err := sql.Open("postgres", dsn)
			if err != nil {
				return fmt.Errorf("open postgres: %w", err)
			}
			defer db.Close()

			deadline := time.Now().Add(timeout)
			for {
				ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
				err := db.PingContext(ctx)
				cancel()
				if err == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "postgres ready")
					return nil
				}
				if time.Now().After(deadline) {
					return fmt.Errorf("postgres not ready within %s: %w", timeout, err)
				}
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(2 * time.Second):
				}
			}
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "How long to keep trying")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dashboard-gateway %s\n", Version)
		},
	}
}

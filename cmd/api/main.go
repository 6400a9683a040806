package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/drafting/backend/internal/config"
	"github.com/zhouzirui/drafting/backend/internal/service/ai"
	"github.com/zhouzirui/drafting/backend/internal/store"
	"github.com/zhouzirui/drafting/backend/pkg/logging"
)

const appName = "drafting-api"

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "GenAI email & report drafting API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// 加载 .env，缺失时使用系统环境变量
			if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", envFile, err)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the database schema and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.Context())
			},
		},
		healthcheckCmd(),
	)

	return cmd
}

func healthcheckCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Call the configured generation backend once and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client, err := newClient(ctx, cfg.AI, logger)
			if err != nil {
				return err
			}
			if client == nil {
				return fmt.Errorf("AI service unavailable: %s credentials are not configured", cfg.AI.Provider)
			}

			status := client.HealthCheck(ctx)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(status); err != nil {
				return err
			}
			if status.Status != "healthy" {
				return fmt.Errorf("generation backend unhealthy")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall deadline for the check")
	return cmd
}

func loadConfig() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, logging.NewLoggerWithLevel(cfg.Log.Level), nil
}

func runMigrate(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Driver == config.DriverMemory {
		logger.Info("memory store selected, nothing to migrate")
		return nil
	}

	db, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(ctx, db, cfg.Database.Driver); err != nil {
		return err
	}
	logger.WithField("driver", cfg.Database.Driver).Info("schema applied")
	return nil
}

// newClient 未配置凭证时返回 nil
func newClient(ctx context.Context, cfg config.AIConfig, logger logging.Logger) (*ai.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	backend, err := cfg.NewBackend(ctx)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", cfg.Provider, err)
	}
	return ai.NewClient(backend, cfg.ClientOptions(), logger), nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

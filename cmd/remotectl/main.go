package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/remote-control/internal/config"
	"github.com/suPer8Hu/remote-control/internal/telemetry"
)

var version = "dev"

var (
	cfg       config.Config
	logger    *slog.Logger
	envFile   string
	closeLogs = func() {}
	shutdown  = func(context.Context) error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "remotectl",
	Short: "Chat-driven remote control for automation workflows",
	Long: `remotectl runs a Telegram bot that authenticates operators, walks them through
guided conversations and posts the collected answers to an automation service.

  serve   - HTTP front door plus message dispatch (poll or webhook mode)
  worker  - consume queued messages from RabbitMQ
  migrate, add-user, add-integration, admin-token - operator tooling`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		cfg = config.Load()
		if err := cfg.Validate(); err != nil {
			return err
		}

		var err error
		logger, closeLogs, err = telemetry.InitLogger(cfg.LogFile, cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		shutdown, err = telemetry.InitTelemetry(cmd.Context(), cfg.TelemetryDir, version)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
		closeLogs()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.Version = version

	rootCmd.AddCommand(serveCmd, workerCmd)
	rootCmd.AddCommand(migrateCmd, addUserCmd, addIntegrationCmd, adminTokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

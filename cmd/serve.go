package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"qnabot/pkg/channel"
	"qnabot/pkg/channel/telegram"
	"qnabot/pkg/config"
	"qnabot/pkg/gateway"
	"qnabot/pkg/logger"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram gateway",
	Long:  "Starts Telegram long polling with health and readiness endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			os.Exit(1)
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			os.Exit(1)
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		adapters, err := buildAdapters(cfg, log)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			os.Exit(1)
		}

		svc, err := gateway.NewService(cfg, adapters, log)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			os.Exit(1)
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info("Gateway started", "provider", cfg.Generation.Provider, "model", cfg.Generation.Model)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func buildAdapters(cfg *config.Config, log *slog.Logger) ([]channel.Adapter, error) {
	adapter, err := telegram.NewAdapter(cfg.Telegram, log)
	if err != nil {
		return nil, fmt.Errorf("configure telegram channel: %w", err)
	}

	return []channel.Adapter{adapter}, nil
}

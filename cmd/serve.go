package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"caterpillar/pkg/bus"
	"caterpillar/pkg/channel/telegram"
	"caterpillar/pkg/config"
	"caterpillar/pkg/gateway"
	"caterpillar/pkg/logger"
	"caterpillar/pkg/query"
	"caterpillar/pkg/relay"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Relay Telegram messages to the query service",
	Long:  "Long-polls Telegram, answers /start and /help, forwards everything else to the query service, and serves /healthz, /readyz and /stats.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(appLogger)
	log := appLogger.With("component", "cmd.serve")

	adapter, err := telegram.New(cfg.Telegram, appLogger)
	if err != nil {
		return fmt.Errorf("configure telegram: %w", err)
	}

	client, err := query.New(cfg.Service, appLogger)
	if err != nil {
		return fmt.Errorf("configure query client: %w", err)
	}

	events := bus.New()
	defer events.Close()

	router := relay.NewRouter(client, adapter, events, appLogger)
	loop := relay.NewLoop(adapter, router, events, appLogger, time.Duration(cfg.Telegram.RetryDelaySeconds)*time.Second)

	svc, err := gateway.NewService(cfg.Status, loop, events, appLogger)
	if err != nil {
		return fmt.Errorf("initialize gateway: %w", err)
	}

	log.Info("Relay starting",
		"service_url", client.URL(),
		"request_timeout", client.Timeout().String(),
		"poll_timeout_seconds", cfg.Telegram.PollTimeoutSeconds,
		"status_enabled", cfg.Status.Enabled,
	)
	if err := svc.Run(ctx); err != nil {
		return err
	}

	log.Info("Relay stopped")
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/remote-control/internal/bot"
	"github.com/suPer8Hu/remote-control/internal/httpapi"
	"github.com/suPer8Hu/remote-control/internal/store/rabbitmq"
	"github.com/suPer8Hu/remote-control/internal/telegram"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and dispatch chat messages",
	Long: `Starts the HTTP API (health, Telegram webhook, admin routes) and receives
updates either by long polling (TELEGRAM_MODE=poll) or through the webhook.

Messages are handled in-process by a worker pool, or published to RabbitMQ for
"remotectl worker" when RABBIT_URL is set.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	submit, stopDispatch, err := dispatcher(a)
	if err != nil {
		return err
	}
	defer stopDispatch()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(a.repo, submit, httpapi.Options{
		JWTSecret:     cfg.JWTSecret,
		WebhookSecret: cfg.TelegramWebhookSecret,
	}, logger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var poller *telegram.Poller
	switch cfg.TelegramMode {
	case "webhook":
		if err := a.telegram.SetWebhook(ctx, cfg.TelegramWebhookURL, cfg.TelegramWebhookSecret); err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
		logger.Info("telegram webhook registered", "url", cfg.TelegramWebhookURL)
	default:
		if err := a.telegram.DeleteWebhook(ctx); err != nil {
			return fmt.Errorf("delete webhook: %w", err)
		}
		poller = telegram.NewPoller(a.telegram, submit, logger)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if poller != nil {
		g.Go(func() error {
			logger.Info("telegram polling started")
			return poller.Run(gctx)
		})
	}

	return g.Wait()
}

// dispatcher returns where inbound messages go: RabbitMQ when configured, otherwise an
// in-process pool. stop drains it.
func dispatcher(a *app) (func(context.Context, bot.Message) error, func(), error) {
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			return nil, nil, fmt.Errorf("rabbit publisher: %w", err)
		}
		logger.Info("dispatching to rabbitmq", "queue", cfg.RabbitQueue)
		return pub.PublishMessage, func() { _ = pub.Close() }, nil
	}

	pool := bot.NewPool(a.service, cfg.WorkerConcurrency, 64, logger)
	logger.Info("dispatching in process", "workers", cfg.WorkerConcurrency)
	submit := func(ctx context.Context, msg bot.Message) error {
		return pool.Submit(ctx, msg, nil)
	}
	return submit, pool.Close, nil
}

package main

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/remote-control/internal/bot"
	"github.com/suPer8Hu/remote-control/internal/store/rabbitmq"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Handle chat messages queued by serve",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, _ []string) error {
	if cfg.RabbitURL == "" {
		return errors.New("worker needs RABBIT_URL")
	}
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// strict concurrency control
	concurrency := cfg.WorkerConcurrency
	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, concurrency*2, logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	pool := bot.NewPool(a.service, concurrency, concurrency*2, logger)
	logger.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", concurrency)

	err = consumer.Run(ctx, pool.Submit)
	// drain before the channel closes so pending acks go out
	pool.Close()
	logger.Info("worker shutting down")
	return err
}

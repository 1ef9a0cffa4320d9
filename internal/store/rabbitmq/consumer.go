package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/remote-control/internal/bot"
)

// SubmitFunc matches (*bot.Pool).Submit.
type SubmitFunc func(ctx context.Context, msg bot.Message, done func(error)) error

type Consumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	prefetch int
	log      *slog.Logger
}

// NewConsumer limits unacknowledged deliveries to prefetch.
func NewConsumer(url, queue string, prefetch int, log *slog.Logger) (*Consumer, error) {
	if prefetch <= 0 {
		prefetch = 1
	}
	if log == nil {
		log = slog.Default()
	}
	conn, ch, err := dial(url, queue)
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = closeAll(ch, conn)
		return nil, fmt.Errorf("qos: %w", err)
	}
	return &Consumer{conn: conn, ch: ch, queue: queue, prefetch: prefetch, log: log}, nil
}

func (c *Consumer) Close() error {
	return closeAll(c.ch, c.conn)
}

// Run feeds deliveries to submit until ctx is done. A delivery is acked once its
// handler succeeds and dead-lettered when it fails or cannot be decoded.
func (c *Consumer) Run(ctx context.Context, submit SubmitFunc) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	c.log.Info("consumer started", "queue", c.queue, "prefetch", c.prefetch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("rabbitmq: delivery channel closed")
			}
			deliver(ctx, d, submit, c.log)
		}
	}
}

func deliver(ctx context.Context, d amqp.Delivery, submit SubmitFunc, log *slog.Logger) {
	var msg bot.Message
	if err := json.Unmarshal(d.Body, &msg); err != nil || msg.ChatID == 0 {
		log.Warn("bad message", "delivery_tag", d.DeliveryTag, "error", err)
		_ = d.Nack(false, false)
		return
	}

	err := submit(ctx, msg, func(err error) {
		if err != nil {
			_ = d.Nack(false, false)
			return
		}
		if err := d.Ack(false); err != nil {
			log.Warn("ack failed", "message_id", msg.ID, "error", err)
		}
	})
	if err != nil {
		// never started; hand it back to the broker
		log.Warn("submit failed", "message_id", msg.ID, "chat_id", msg.ChatID, "error", err)
		_ = d.Nack(false, true)
	}
}

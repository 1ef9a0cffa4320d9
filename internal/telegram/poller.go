package telegram

import (
	"context"
	"log/slog"
	"time"

	"github.com/suPer8Hu/remote-control/internal/bot"
)

// SubmitFunc hands one inbound message to the dispatcher.
type SubmitFunc func(ctx context.Context, msg bot.Message) error

type updateSource interface {
	GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]Update, error)
}

// Poller long-polls getUpdates and submits each text message in update order.
type Poller struct {
	src     updateSource
	submit  SubmitFunc
	log     *slog.Logger
	Wait    time.Duration
	Backoff time.Duration
}

func NewPoller(src updateSource, submit SubmitFunc, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{src: src, submit: submit, log: log, Wait: 30 * time.Second, Backoff: 3 * time.Second}
}

// Run polls until ctx is cancelled. Fetch errors are logged and retried after Backoff.
// When submit fails the rest of the batch is dropped and fetched again from the failed
// update, so a refused message is retried rather than lost.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := p.src.GetUpdates(ctx, offset, p.Wait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.log.Warn("get updates failed", "error", err, "retry_in", p.Backoff.String())
			if !p.sleep(ctx) {
				return nil
			}
			continue
		}

		refused := false
		for _, u := range updates {
			if msg, ok := u.Inbound(); ok {
				if err := p.submit(ctx, msg); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					p.log.Error("submit message failed", "update_id", u.UpdateID, "chat_id", msg.ChatID,
						"error", err, "retry_in", p.Backoff.String())
					refused = true
					break
				}
			}
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
		}
		if refused && !p.sleep(ctx) {
			return nil
		}
	}
}

// sleep waits Backoff and reports false if ctx ended first.
func (p *Poller) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(p.Backoff):
		return true
	}
}

package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrPoolClosed = errors.New("bot: pool closed")

// Handler is implemented by *Service.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

type job struct {
	ctx  context.Context
	msg  Message
	done func(error)
}

// Pool runs a fixed number of workers. Messages are sharded by chat id, so one chat is
// always served by the same worker in submission order while other chats proceed.
type Pool struct {
	handler Handler
	log     *slog.Logger
	shards  []chan job
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(h Handler, workers, queue int, log *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{handler: h, log: log, shards: make([]chan job, workers)}
	p.wg.Add(workers)
	for i := range p.shards {
		p.shards[i] = make(chan job, queue)
		go p.worker(i, p.shards[i])
	}
	return p
}

func (p *Pool) worker(id int, jobs <-chan job) {
	defer p.wg.Done()
	for j := range jobs {
		start := time.Now()
		err := p.handler.Handle(j.ctx, j.msg)
		if err != nil {
			p.log.Warn("message failed", "worker", id, "chat_id", j.msg.ChatID, "message_id", j.msg.ID,
				"duration", time.Since(start), "error", err)
		}
		if j.done != nil {
			j.done(err)
		}
	}
}

// Submit queues msg on its chat's worker. It blocks while that worker's queue is full,
// until ctx is done. The handler sees ctx's values but not its cancellation. done, if
// set, is called with the handler's result.
func (p *Pool) Submit(ctx context.Context, msg Message, done func(error)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	ch := p.shards[shardOf(msg.ChatID, len(p.shards))]
	select {
	case ch <- job{ctx: context.WithoutCancel(ctx), msg: msg, done: done}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages, lets queued ones finish and waits for the workers.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, ch := range p.shards {
		close(ch)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func shardOf(chatID int64, n int) int {
	u := uint64(chatID)
	return int(u % uint64(n))
}

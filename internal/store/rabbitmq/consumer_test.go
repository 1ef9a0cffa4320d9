package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/remote-control/internal/bot"
)

type settlement struct {
	acked, nacked, requeued bool
}

type fakeAck struct {
	mu sync.Mutex
	settlement
}

func (f *fakeAck) Ack(uint64, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = true
	return nil
}

func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked, f.requeued = true, requeue
	return nil
}

func (f *fakeAck) Reject(tag uint64, requeue bool) error { return f.Nack(tag, false, requeue) }

func (f *fakeAck) state() settlement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settlement
}

func delivery(t *testing.T, body []byte) (amqp.Delivery, *fakeAck) {
	t.Helper()
	ack := &fakeAck{}
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}, ack
}

func encode(t *testing.T, msg bot.Message) []byte {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return b
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDeliver_AcksOnSuccess(t *testing.T) {
	d, ack := delivery(t, encode(t, bot.Message{ID: "m1", ChatID: 42, SenderID: 7, Text: "/status"}))

	var got bot.Message
	deliver(context.Background(), d, func(_ context.Context, msg bot.Message, done func(error)) error {
		got = msg
		done(nil)
		return nil
	}, quiet())

	assert.Equal(t, "/status", got.Text)
	assert.EqualValues(t, 42, got.ChatID)
	assert.Equal(t, settlement{acked: true}, ack.state())
}

func TestDeliver_DeadLettersFailures(t *testing.T) {
	d, ack := delivery(t, encode(t, bot.Message{ID: "m2", ChatID: 42, Text: "x"}))
	deliver(context.Background(), d, func(_ context.Context, _ bot.Message, done func(error)) error {
		done(errors.New("handler failed"))
		return nil
	}, quiet())
	assert.Equal(t, settlement{nacked: true}, ack.state())
}

func TestDeliver_RejectsUndecodable(t *testing.T) {
	called := false
	submit := func(context.Context, bot.Message, func(error)) error {
		called = true
		return nil
	}

	for _, body := range [][]byte{[]byte("{nope"), []byte(`{"text":"no chat"}`)} {
		d, ack := delivery(t, body)
		deliver(context.Background(), d, submit, quiet())
		assert.Equal(t, settlement{nacked: true}, ack.state())
	}
	assert.False(t, called)
}

func TestDeliver_RequeuesWhenNotAccepted(t *testing.T) {
	d, ack := delivery(t, encode(t, bot.Message{ID: "m3", ChatID: 1, Text: "hi"}))
	deliver(context.Background(), d, func(context.Context, bot.Message, func(error)) error {
		return bot.ErrPoolClosed
	}, quiet())
	assert.Equal(t, settlement{nacked: true, requeued: true}, ack.state())
}

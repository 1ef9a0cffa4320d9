// Package redisstore keeps per-chat conversation state in Redis so any process can
// continue a chat where another left it.
package redisstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/remote-control/internal/bot"
)

const keyPrefix = "remotectl:chat_state:"

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(addr, password string, db int, ttl time.Duration) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), ttl)
}

func NewWithClient(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func chatKey(chatID int64) string {
	return keyPrefix + strconv.FormatInt(chatID, 10)
}

// Load returns the zero state when the chat has nothing stored. Numbers inside collected
// answers decode as json.Number.
func (s *Store) Load(ctx context.Context, chatID int64) (bot.ChatState, error) {
	raw, err := s.rdb.Get(ctx, chatKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return bot.ChatState{}, nil
	}
	if err != nil {
		return bot.ChatState{}, fmt.Errorf("redis get chat state: %w", err)
	}

	var st bot.ChatState
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&st); err != nil {
		return bot.ChatState{}, fmt.Errorf("decode chat state: %w", err)
	}
	return st, nil
}

// Save writes st and refreshes its expiry. The zero state deletes the key.
func (s *Store) Save(ctx context.Context, chatID int64, st bot.ChatState) error {
	if st == (bot.ChatState{}) {
		return s.rdb.Del(ctx, chatKey(chatID)).Err()
	}
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode chat state: %w", err)
	}
	return s.rdb.Set(ctx, chatKey(chatID), b, s.ttl).Err()
}

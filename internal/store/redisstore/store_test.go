package redisstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/remote-control/internal/auth"
	"github.com/suPer8Hu/remote-control/internal/bot"
	"github.com/suPer8Hu/remote-control/internal/conversation"
)

func newStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), ttl)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t, time.Hour)
	require.NoError(t, s.Ping(ctx))

	empty, err := s.Load(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, bot.ChatState{}, empty)

	in := bot.ChatState{
		Auth: auth.Flags{PrincipalID: "p1", Authenticated: true},
		Run: &conversation.Run{
			RunID: "01JRUN", Command: "/tasks", StepIndex: 5,
			Answered: []string{"projectDescription", "boardId", "groupName", "assigneeEmails", "weeklyHours"},
			Answers:  map[string]any{"projectDescription": "Build a dashboard", "boardId": "123", "weeklyHours": 40},
		},
	}
	require.NoError(t, s.Save(ctx, -1001234, in))
	assert.True(t, mr.Exists("remotectl:chat_state:-1001234"))
	assert.Equal(t, time.Hour, mr.TTL("remotectl:chat_state:-1001234"))

	out, err := s.Load(ctx, -1001234)
	require.NoError(t, err)
	assert.Equal(t, in.Auth, out.Auth)
	assert.Equal(t, in.Run.Answered, out.Run.Answered)
	assert.Equal(t, json.Number("40"), out.Run.Answers["weeklyHours"])

	b1, _ := json.Marshal(in.Run.Answers)
	b2, _ := json.Marshal(out.Run.Answers)
	assert.JSONEq(t, string(b1), string(b2))
}

func TestStore_ExpiresAndDeletes(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t, time.Minute)

	require.NoError(t, s.Save(ctx, 1, bot.ChatState{Auth: auth.Flags{AwaitingPassword: true}}))
	mr.FastForward(2 * time.Minute)
	st, err := s.Load(ctx, 1)
	require.NoError(t, err)
	assert.False(t, st.Auth.AwaitingPassword)

	require.NoError(t, s.Save(ctx, 2, bot.ChatState{Auth: auth.Flags{AwaitingPassword: true}}))
	require.NoError(t, s.Save(ctx, 2, bot.ChatState{}))
	assert.False(t, mr.Exists("remotectl:chat_state:2"))
}

func TestStore_CorruptValue(t *testing.T) {
	s, mr := newStore(t, time.Minute)
	require.NoError(t, mr.Set("remotectl:chat_state:3", "{not json"))
	_, err := s.Load(context.Background(), 3)
	assert.Error(t, err)
}

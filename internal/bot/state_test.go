package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/remote-control/internal/auth"
	"github.com/suPer8Hu/remote-control/internal/conversation"
)

func TestMemoryStateStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStateStore(time.Hour)
	s.now = func() time.Time { return now }

	st, err := s.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ChatState{}, st)

	run := &conversation.Run{RunID: "r1", Command: "/tasks", Answers: map[string]any{"a": "x"}}
	require.NoError(t, s.Save(ctx, 1, ChatState{Auth: auth.Flags{AwaitingPassword: true}, Run: run}))

	// callers cannot reach into the stored copy
	run.Answers["b"] = "y"
	got, err := s.Load(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got.Run.Answers, 1)
	got.Run.StepIndex = 3
	again, _ := s.Load(ctx, 1)
	assert.Equal(t, 0, again.Run.StepIndex)

	now = now.Add(2 * time.Hour)
	expired, err := s.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ChatState{}, expired)
}

func TestChatLocks_ReleaseEntries(t *testing.T) {
	var l chatLocks
	unlock := l.lock(5)
	assert.Len(t, l.m, 1)
	unlock()
	assert.Empty(t, l.m)
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/remote-control/internal/db/dbtest"
	"github.com/suPer8Hu/remote-control/internal/models"
)

func TestUpsertPrincipal_ReplacesCredentials(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(dbtest.Open(t))

	first, err := repo.UpsertPrincipal(ctx, &models.Principal{TelegramID: 42, Username: "alice", PasswordHash: "h1"})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := repo.UpsertPrincipal(ctx, &models.Principal{TelegramID: 42, Username: "alice2", PasswordHash: "h2"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "alice2", second.Username)
	assert.Equal(t, "h2", second.PasswordHash)

	_, err = repo.GetPrincipalByTelegramID(ctx, 7)
	assert.True(t, IsNotFound(err))
}

func TestMarkAuthenticated(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(dbtest.Open(t))

	p, err := repo.UpsertPrincipal(ctx, &models.Principal{TelegramID: 1, PasswordHash: "h"})
	require.NoError(t, err)
	require.False(t, p.IsAuthenticated)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkAuthenticated(ctx, p.ID, at))

	got, err := repo.GetPrincipalByTelegramID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.IsAuthenticated)
	require.NotNil(t, got.LastAuthAt)
	assert.True(t, got.LastAuthAt.Equal(at))
}

func TestFindValidSession(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(dbtest.Open(t))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no rows", func(t *testing.T) {
		_, err := repo.FindValidSession(ctx, 100, now)
		assert.True(t, IsNotFound(err))
	})

	t.Run("expired rows are ignored", func(t *testing.T) {
		require.NoError(t, repo.CreateSession(ctx, &models.Session{
			UserID: "u1", TelegramChatID: 200, ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour),
		}))
		_, err := repo.FindValidSession(ctx, 200, now)
		assert.True(t, IsNotFound(err))
	})

	t.Run("newest valid row wins", func(t *testing.T) {
		older := &models.Session{UserID: "u-old", TelegramChatID: 300, ExpiresAt: now.Add(48 * time.Hour), CreatedAt: now.Add(-2 * time.Hour)}
		newer := &models.Session{UserID: "u-new", TelegramChatID: 300, ExpiresAt: now.Add(24 * time.Hour), CreatedAt: now.Add(-time.Hour)}
		require.NoError(t, repo.CreateSession(ctx, older))
		require.NoError(t, repo.CreateSession(ctx, newer))

		got, err := repo.FindValidSession(ctx, 300, now)
		require.NoError(t, err)
		assert.Equal(t, newer.ID, got.ID)
		assert.Equal(t, "u-new", got.UserID)
	})

	t.Run("active count", func(t *testing.T) {
		n, err := repo.CountActiveSessions(ctx, now)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
	})
}

func TestCommandStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(dbtest.Open(t))

	data := map[string]any{
		"projectDescription": "Build a dashboard for the ops team",
		"boardId":            "9744010967",
		"weeklyHours":        40,
	}
	require.NoError(t, repo.InsertCommandState(ctx, &models.CommandState{
		RunID: "01JTESTRUN0000000000000001", UserID: "u1", TelegramChatID: 9, Command: "/tasks",
		CollectedData: data, Completed: true,
	}))

	got, err := repo.GetCommandStateByRunID(ctx, "01JTESTRUN0000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "Build a dashboard for the ops team", got.CollectedData["projectDescription"])
	// JSON numbers come back as float64
	assert.EqualValues(t, 40, got.CollectedData["weeklyHours"])

	last, err := repo.LastCompletedState(ctx, "u1", "/tasks")
	require.NoError(t, err)
	assert.Equal(t, got.RunID, last.RunID)
}

func TestRecentCommandLogs_NewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(dbtest.Open(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, cmd := range []string{"/status", "/deploy", "/tasks"} {
		require.NoError(t, repo.InsertCommandLog(ctx, &models.CommandLog{
			UserID: "u1", Command: cmd, Success: i != 1, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	logs, err := repo.RecentCommandLogs(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "/tasks", logs[0].Command)
	assert.Equal(t, "/deploy", logs[1].Command)
	assert.False(t, logs[1].Success)
}

func TestIntegrations(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(dbtest.Open(t))

	_, err := repo.UpsertIntegration(ctx, &models.Integration{Name: "deploy-api", WebhookURL: "http://a", Enabled: true})
	require.NoError(t, err)
	_, err = repo.UpsertIntegration(ctx, &models.Integration{Name: "disabled", WebhookURL: "http://b", Enabled: false})
	require.NoError(t, err)
	updated, err := repo.UpsertIntegration(ctx, &models.Integration{
		Name: "deploy-api", WebhookURL: "http://c", Enabled: true, Config: map[string]any{"env": "prod"},
	})
	require.NoError(t, err)
	assert.Equal(t, "http://c", updated.WebhookURL)

	list, err := repo.ListEnabledIntegrations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "deploy-api", list[0].Name)
	assert.Equal(t, "prod", list[0].Config["env"])

	_, err = repo.GetEnabledIntegration(ctx, "disabled")
	assert.True(t, IsNotFound(err))
}

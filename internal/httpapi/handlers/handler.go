package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/remote-control/internal/bot"
	"github.com/suPer8Hu/remote-control/internal/common"
	"github.com/suPer8Hu/remote-control/internal/models"
)

// Store is what the HTTP surface reads and writes.
type Store interface {
	Ping(ctx context.Context) error
	GetPrincipalByTelegramID(ctx context.Context, telegramID int64) (*models.Principal, error)
	UpsertPrincipal(ctx context.Context, p *models.Principal) (*models.Principal, error)
	RecentCommandLogs(ctx context.Context, userID string, limit int) ([]models.CommandLog, error)
	UpsertIntegration(ctx context.Context, it *models.Integration) (*models.Integration, error)
}

// SubmitFunc hands an inbound message to the dispatcher (worker pool or queue).
type SubmitFunc func(ctx context.Context, msg bot.Message) error

type Handler struct {
	Store          Store
	Submit         SubmitFunc
	WebhookSecret  string
	EnqueueTimeout time.Duration
	Log            *slog.Logger
}

func NewHandler(store Store, submit SubmitFunc, webhookSecret string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		Store:          store,
		Submit:         submit,
		WebhookSecret:  webhookSecret,
		EnqueueTimeout: 5 * time.Second,
		Log:            log,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		h.Log.Warn("ping: database unavailable", "error", err)
		common.Fail(c, http.StatusServiceUnavailable, 50301, "database unavailable")
		return
	}
	common.OK(c, gin.H{"pong": true})
}

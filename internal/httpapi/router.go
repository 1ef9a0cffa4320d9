package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/remote-control/internal/common"
	"github.com/suPer8Hu/remote-control/internal/httpapi/handlers"
	"github.com/suPer8Hu/remote-control/internal/httpapi/middleware"
)

type Options struct {
	JWTSecret     string
	WebhookSecret string
	// WebhookPath defaults to /telegram/webhook.
	WebhookPath string
}

func NewRouter(store handlers.Store, submit handlers.SubmitFunc, opts Options, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = slog.Default()
	}
	if opts.WebhookPath == "" {
		opts.WebhookPath = "/telegram/webhook"
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(store, submit, opts.WebhookSecret, log)

	r.GET("/ping", h.Ping)

	// telegram delivery
	r.POST(opts.WebhookPath, h.TelegramWebhook)

	// admin (JWT with admin audience)
	admin := r.Group("/admin")
	admin.Use(middleware.AdminAuth(opts.JWTSecret))
	admin.POST("/principals", h.UpsertPrincipal)
	admin.GET("/principals/:telegram_id/logs", h.ListPrincipalLogs)
	admin.POST("/integrations", h.UpsertIntegration)
	return r
}

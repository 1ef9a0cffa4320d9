package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/remote-control/internal/common"
	"github.com/suPer8Hu/remote-control/internal/models"
)

type upsertIntegrationReq struct {
	Name       string         `json:"name" binding:"required"`
	WebhookURL string         `json:"webhook_url" binding:"required"`
	Config     map[string]any `json:"config"`
	Enabled    *bool          `json:"enabled"`
}

// UpsertIntegration registers a webhook for /webhook <name>. Enabled defaults to true.
func (h *Handler) UpsertIntegration(c *gin.Context) {
	var req upsertIntegrationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	name := strings.ToLower(strings.TrimSpace(req.Name))
	if name == "" || strings.ContainsAny(name, " \t\n") {
		common.Fail(c, http.StatusBadRequest, 10002, "name must be a single word")
		return
	}
	u, err := url.Parse(req.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "webhook_url must be an absolute http(s) url")
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	it, err := h.Store.UpsertIntegration(c.Request.Context(), &models.Integration{
		Name:       name,
		WebhookURL: req.WebhookURL,
		Config:     req.Config,
		Enabled:    enabled,
	})
	if err != nil {
		h.Log.Error("upsert integration failed", "name", name, "error", err)
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, it)
}

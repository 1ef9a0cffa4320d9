package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/remote-control/internal/auth"
	"github.com/suPer8Hu/remote-control/internal/common"
	"github.com/suPer8Hu/remote-control/internal/models"
	"github.com/suPer8Hu/remote-control/internal/store"
)

const minPasswordLen = 8

type upsertPrincipalReq struct {
	TelegramID int64  `json:"telegram_id" binding:"required"`
	Username   string `json:"username"`
	Password   string `json:"password" binding:"required"`
}

// UpsertPrincipal provisions a chat user or resets their password.
func (h *Handler) UpsertPrincipal(c *gin.Context) {
	var req upsertPrincipalReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLen {
		common.Fail(c, http.StatusBadRequest, 10002, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}

	p, err := h.Store.UpsertPrincipal(c.Request.Context(), &models.Principal{
		TelegramID:   req.TelegramID,
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
	})
	if err != nil {
		h.Log.Error("upsert principal failed", "telegram_id", req.TelegramID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{
		"id":          p.ID,
		"telegram_id": p.TelegramID,
		"username":    p.Username,
		"created_at":  p.CreatedAt,
	})
}

// ListPrincipalLogs returns the newest command log rows of one principal.
func (h *Handler) ListPrincipalLogs(c *gin.Context) {
	tgID, err := strconv.ParseInt(c.Param("telegram_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid telegram id")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 {
		limit = 20
	}

	p, err := h.Store.GetPrincipalByTelegramID(c.Request.Context(), tgID)
	if err != nil {
		if store.IsNotFound(err) {
			common.Fail(c, http.StatusNotFound, 40401, "principal not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	logs, err := h.Store.RecentCommandLogs(c.Request.Context(), p.ID, limit)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{"principal_id": p.ID, "logs": logs})
}

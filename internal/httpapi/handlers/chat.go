package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/remote-control/internal/common"
	"github.com/suPer8Hu/remote-control/internal/httpapi/middleware"
	"github.com/suPer8Hu/remote-control/internal/telegram"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// TelegramWebhook accepts one update. Updates that carry no text message are
// acknowledged and dropped. A 503 makes Telegram redeliver when the message could
// not be queued.
func (h *Handler) TelegramWebhook(c *gin.Context) {
	if h.WebhookSecret != "" &&
		subtle.ConstantTimeCompare([]byte(c.GetHeader(secretHeader)), []byte(h.WebhookSecret)) != 1 {
		common.Fail(c, http.StatusUnauthorized, 40103, "invalid webhook secret")
		return
	}

	var u telegram.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	msg, ok := u.Inbound()
	if !ok {
		common.OK(c, gin.H{"queued": false})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.EnqueueTimeout)
	defer cancel()
	if err := h.Submit(ctx, msg); err != nil {
		h.Log.Error("enqueue update failed",
			"update_id", u.UpdateID,
			"chat_id", msg.ChatID,
			"request_id", c.GetString(middleware.RequestIDKey),
			"error", err,
		)
		common.Fail(c, http.StatusServiceUnavailable, 50302, "enqueue failed")
		return
	}
	common.OK(c, gin.H{"queued": true, "message_id": msg.ID})
}

package api

import (
	"errors"
	"io"
	"net/http"

	"commerce-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	headerWebhookSignature = "X-Razorpay-Signature"
	headerWebhookEventID   = "X-Razorpay-Event-Id"
	maxWebhookBody         = 1 << 20
)

// paymentWebhook verifies and applies a gateway notification. Any failure is
// a 400 so the gateway retries; unknown events are acknowledged.
func (h *Handler) paymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
		return
	}

	res, err := h.Reconciler.HandleWebhook(c.Request.Context(), body,
		c.GetHeader(headerWebhookSignature), c.GetHeader(headerWebhookEventID))
	if err != nil {
		h.logger.Warn("Webhook rejected",
			zap.String("event_id", c.GetHeader(headerWebhookEventID)),
			zap.Error(err))
		msg := "Webhook processing failed"
		if errors.Is(err, service.ErrMissingSignature) || errors.Is(err, service.ErrInvalidSignature) {
			msg = "Invalid signature"
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "result": res})
}

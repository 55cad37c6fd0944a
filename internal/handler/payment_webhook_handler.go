package handler

import (
	"io"
	"net/http"

	"scancodes/internal/service"
	"scancodes/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const maxWebhookBody = 1 << 20

type PaymentWebhookHandler struct {
	manager *service.PaymentManager
	log     logrus.FieldLogger
}

func NewPaymentWebhookHandler(manager *service.PaymentManager, log logrus.FieldLogger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{manager: manager, log: log}
}

// Handle processes POST /webhooks/payments/:provider. The raw body is handed
// to the gateway untouched so signatures can be checked against it.
func (h *PaymentWebhookHandler) Handle(c *gin.Context) {
	provider, err := payment.ParseProvider(c.Param("provider"))
	if err != nil || provider != h.manager.Provider() {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "payment provider is not active"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid body"})
		return
	}
	res, err := h.manager.HandleGatewayWebhook(c.Request.Context(), body, c.Request.Header)
	if err != nil {
		h.log.WithError(err).WithField("ip", c.ClientIP()).Warn("webhook rejected")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": res.Message, "data": res})
}

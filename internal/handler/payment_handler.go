package handler

import (
	"net/http"

	"scancodes/internal/middleware"
	"scancodes/internal/repository"
	"scancodes/internal/service"
	"scancodes/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type PaymentHandler struct {
	manager  *service.PaymentManager
	userRepo *repository.UserRepository
}

func NewPaymentHandler(manager *service.PaymentManager, userRepo *repository.UserRepository) *PaymentHandler {
	return &PaymentHandler{manager: manager, userRepo: userRepo}
}

type initializeRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	PaymentType string          `json:"payment_type"`
	Narration   string          `json:"narration"`
	Meta        map[string]any  `json:"meta"`
	RedirectURL string          `json:"redirect_url"`
}

// Initialize handles POST /payments/initialize.
func (h *PaymentHandler) Initialize(c *gin.Context) {
	var req initializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid request body"})
		return
	}
	u, err := h.userRepo.GetByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	resp, err := h.manager.InitializeGatewayPayment(c.Request.Context(), service.InitRequest{
		Amount:      req.Amount,
		Currency:    req.Currency,
		User:        u,
		PaymentType: req.PaymentType,
		Narration:   req.Narration,
		ExtraMeta:   req.Meta,
		RedirectURL: req.RedirectURL,
	})
	switch {
	case err != nil && resp == nil:
		respondError(c, err)
	case err != nil:
		c.JSON(payment.HTTPStatus(err), resp)
	case !resp.OK():
		c.JSON(http.StatusBadGateway, resp)
	default:
		c.JSON(http.StatusOK, resp)
	}
}

// Get handles GET /payments/:reference.
func (h *PaymentHandler) Get(c *gin.Context) {
	p, err := h.manager.GetPayment(c.Request.Context(), middleware.GetUserID(c), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": p})
}

// Verify handles GET /payments/verify/:reference. Settled payments are
// answered from the ledger without asking the provider again.
func (h *PaymentHandler) Verify(c *gin.Context) {
	p, err := h.manager.GetPayment(c.Request.Context(), middleware.GetUserID(c), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	if p.Status.IsTerminal() {
		c.JSON(http.StatusOK, &payment.VerificationResponse{
			Status:            p.Status,
			Amount:            p.Amount,
			Currency:          p.Currency,
			ProviderReference: p.ProviderReference,
			MetaInfo:          p.MetaInfo,
		})
		return
	}
	v, err := h.manager.VerifyGatewayPayment(c.Request.Context(), p)
	if err != nil {
		c.JSON(payment.HTTPStatus(err), v)
		return
	}
	c.JSON(http.StatusOK, v)
}

package handler

import (
	"net/http"

	"scancodes/internal/middleware"
	"scancodes/internal/service"
	"scancodes/pkg/money"

	"github.com/gin-gonic/gin"
)

type WalletHandler struct {
	walletSvc *service.WalletService
}

func NewWalletHandler(walletSvc *service.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// GetBalance returns the current user's wallet, opening one if needed.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	w, err := h.walletSvc.Balance(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance":       money.String(w.Balance),
		"currency_code": w.CurrencyCode,
	})
}

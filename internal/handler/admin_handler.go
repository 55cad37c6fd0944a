package handler

import (
	"net/http"
	"time"

	"scancodes/internal/repository"
	"scancodes/internal/service"
	"scancodes/pkg/money"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type AdminHandler struct {
	adminRepo    *repository.AdminRepository
	settingRepo  *repository.SettingRepository
	settingsSvc  *service.SettingsService
	walletSvc    *service.WalletService
	reconcileSvc *service.ReconcileService
}

func NewAdminHandler(
	adminRepo *repository.AdminRepository,
	settingRepo *repository.SettingRepository,
	settingsSvc *service.SettingsService,
	walletSvc *service.WalletService,
	reconcileSvc *service.ReconcileService,
) *AdminHandler {
	return &AdminHandler{
		adminRepo:    adminRepo,
		settingRepo:  settingRepo,
		settingsSvc:  settingsSvc,
		walletSvc:    walletSvc,
		reconcileSvc: reconcileSvc,
	}
}

// Stats handles GET /admin/payments/stats.
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.adminRepo.GetPaymentStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListPayments handles GET /admin/payments.
func (h *AdminHandler) ListPayments(c *gin.Context) {
	page, limit := parsePagination(c)
	list, total, err := h.adminRepo.ListPayments(c.Request.Context(), c.Query("status"), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to list payments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

// ListTransactions handles GET /admin/transactions.
func (h *AdminHandler) ListTransactions(c *gin.Context) {
	page, limit := parsePagination(c)
	list, total, err := h.adminRepo.ListTransactions(c.Request.Context(), c.Query("type"), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to list transactions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

// Refund handles POST /admin/wallets/:user_id/refund.
func (h *AdminHandler) Refund(c *gin.Context) {
	userID, ok := parseID(c, "user_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid user id"})
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid request body"})
		return
	}
	balance, err := h.walletSvc.Refund(c.Request.Context(), userID, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "balance": money.String(balance)})
}

// Reconcile handles POST /admin/payments/reconcile?older_than=15m&limit=50.
func (h *AdminHandler) Reconcile(c *gin.Context) {
	age, err := time.ParseDuration(c.DefaultQuery("older_than", "15m"))
	if err != nil || age < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid older_than duration"})
		return
	}
	_, limit := parsePagination(c)
	report, err := h.reconcileSvc.Run(c.Request.Context(), age, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Gateway handles GET /admin/gateway. Credentials are masked.
func (h *AdminHandler) Gateway(c *gin.Context) {
	gc, err := h.settingsSvc.ActiveGateway(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	cr := gc.Credentials
	c.JSON(http.StatusOK, gin.H{
		"provider":        gc.Provider,
		"test_mode":       cr.TestMode,
		"api_key":         service.MaskSecret(cr.APIKey),
		"secret_key":      service.MaskSecret(cr.SecretKey),
		"public_key":      service.MaskSecret(cr.PublicKey),
		"secret_hash":     service.MaskSecret(cr.SecretHash),
		"test_secret_key": service.MaskSecret(cr.TestSecretKey),
	})
}

// GetSettings handles GET /admin/settings.
func (h *AdminHandler) GetSettings(c *gin.Context) {
	settings, err := h.settingRepo.GetAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to load settings"})
		return
	}
	for i := range settings {
		if service.IsSecretSetting(settings[i].Key) {
			settings[i].Value = service.MaskSecret(settings[i].Value)
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": settings})
}

// UpdateSettings handles PUT /admin/settings. A changed gateway takes
// effect on restart.
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var req struct {
		Settings map[string]string `json:"settings" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	if err := h.settingsSvc.UpdateSettings(c.Request.Context(), req.Settings); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

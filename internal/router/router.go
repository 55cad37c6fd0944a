package router

import (
	"net/http"
	"time"

	"scancodes/config"
	"scancodes/internal/handler"
	"scancodes/internal/metrics"
	"scancodes/internal/middleware"
	"scancodes/internal/publisher"
	"scancodes/internal/repository"
	"scancodes/internal/service"
	"scancodes/internal/ws"
	"scancodes/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Deps are the process-wide collaborators built in main.
type Deps struct {
	Gateway   *payment.Gateway
	Hub       *ws.Hub
	Publisher publisher.Publisher
	Log       logrus.FieldLogger
}

func Setup(cfg *config.Config, db *gorm.DB, deps Deps) (*gin.Engine, error) {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	metrics.RegisterMetrics()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))

	// Repositories
	userRepo := repository.NewUserRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	settingRepo := repository.NewSettingRepository(db)
	adminRepo := repository.NewAdminRepository(db)

	// Services
	settingsSvc := service.NewSettingsService(settingRepo, cfg, log)
	walletSvc := service.NewWalletService(db, log)
	var hub service.Broadcaster
	if deps.Hub != nil {
		hub = deps.Hub
	}
	notifSvc := service.NewNotificationService(hub, deps.Publisher, log)
	manager, err := service.NewPaymentManager(db, deps.Gateway, settingsSvc,
		service.WithNotifications(notifSvc),
		service.WithManagerLogger(log),
	)
	if err != nil {
		return nil, err
	}
	reconcileSvc := service.NewReconcileService(paymentRepo, manager, log)

	// Handlers
	paymentHandler := handler.NewPaymentHandler(manager, userRepo)
	webhookHandler := handler.NewPaymentWebhookHandler(manager, log)
	walletHandler := handler.NewWalletHandler(walletSvc)
	adminHandler := handler.NewAdminHandler(adminRepo, settingRepo, settingsSvc, walletSvc, reconcileSvc)

	r.GET("/health", func(c *gin.Context) {
		body := gin.H{"status": "ok", "provider": manager.Provider()}
		if deps.Hub != nil {
			body["ws_clients"] = deps.Hub.ClientCount()
		}
		c.JSON(http.StatusOK, body)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	webhooks := r.Group("/webhooks")
	if n := cfg.Payment.WebhookRatePerMin; n > 0 {
		webhooks.Use(middleware.RateLimit(middleware.NewInMemoryRateLimiter(n, time.Minute)))
	}
	webhooks.POST("/payments/:provider", webhookHandler.Handle)

	if deps.Hub != nil {
		r.GET("/ws/payments", ws.UpgradePaymentsWS(&cfg.JWT, deps.Hub, log))
	}

	api := r.Group("/api/v1")
	authed := api.Group("", middleware.AuthRequired(&cfg.JWT))
	{
		authed.POST("/payments/initialize", paymentHandler.Initialize)
		authed.GET("/payments/verify/:reference", paymentHandler.Verify)
		authed.GET("/payments/:reference", paymentHandler.Get)
		authed.GET("/wallet", walletHandler.GetBalance)
	}

	admin := api.Group("/admin", middleware.AuthRequired(&cfg.JWT), middleware.AdminRequired())
	{
		admin.GET("/payments/stats", adminHandler.Stats)
		admin.GET("/payments", adminHandler.ListPayments)
		admin.POST("/payments/reconcile", adminHandler.Reconcile)
		admin.GET("/transactions", adminHandler.ListTransactions)
		admin.POST("/wallets/:user_id/refund", adminHandler.Refund)
		admin.GET("/gateway", adminHandler.Gateway)
		admin.GET("/settings", adminHandler.GetSettings)
		admin.PUT("/settings", adminHandler.UpdateSettings)
	}

	return r, nil
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"scancodes/config"
	"scancodes/internal/database"
	"scancodes/internal/publisher"
	"scancodes/internal/repository"
	"scancodes/internal/router"
	"scancodes/internal/service"
	"scancodes/internal/ws"
	"scancodes/pkg/payment"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log := config.NewLogger(cfg.Log)

	db, err := database.NewDB(&cfg.Database, database.GormLogLevel(log.GetLevel()))
	if err != nil {
		log.WithError(err).Fatal("database")
	}
	if err := database.AutoMigrate(db); err != nil {
		log.WithError(err).Fatal("migrate")
	}

	ctx := context.Background()
	settings := service.NewSettingsService(repository.NewSettingRepository(db), cfg, log)
	if err := settings.SeedDefaults(ctx); err != nil {
		log.WithError(err).Fatal("seeding settings")
	}
	gateway, err := buildGateway(ctx, cfg, settings, log)
	if err != nil {
		log.WithError(err).Fatal("payment gateway")
	}

	var pub publisher.Publisher = publisher.Nop{}
	if cfg.Kafka.Enabled {
		pub = publisher.NewKafkaPublisher(cfg.Kafka.BrokerList(), cfg.Kafka.Topic, publisher.RetryConfig{
			MaxAttempts: cfg.Kafka.RetryMaxAttempts,
			BaseDelay:   cfg.Kafka.RetryBaseDelay,
			MaxDelay:    cfg.Kafka.RetryMaxDelay,
			Jitter:      cfg.Kafka.RetryJitter,
		}, log)
		log.WithField("topic", cfg.Kafka.Topic).Info("publishing payment events to kafka")
	}
	defer pub.Close()

	engine, err := router.Setup(cfg, db, router.Deps{
		Gateway:   gateway,
		Hub:       ws.NewHub(),
		Publisher: pub,
		Log:       log,
	})
	if err != nil {
		log.WithError(err).Fatal("router")
	}
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Server.Port, "provider": gateway.Provider()}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	log.Info("server stopped")
}

func buildGateway(ctx context.Context, cfg *config.Config, settings *service.SettingsService, log logrus.FieldLogger) (*payment.Gateway, error) {
	gc, err := settings.ActiveGateway(ctx)
	if err != nil {
		return nil, err
	}
	opts := []payment.Option{
		payment.WithClient(payment.NewClient(cfg.Payment.HTTPTimeout, cfg.Payment.RetryConfig(), log)),
		payment.WithLogger(log),
	}
	if cfg.Payment.BaseURL != "" {
		opts = append(opts, payment.WithBaseURL(cfg.Payment.BaseURL))
	}
	return payment.DefaultRegistry().Gateway(gc, opts...)
}

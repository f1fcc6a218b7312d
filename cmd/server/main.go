package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/azurestay/booking/internal/config"
	"github.com/azurestay/booking/internal/database"
	"github.com/azurestay/booking/internal/gateway"
	"github.com/azurestay/booking/internal/handler"
	"github.com/azurestay/booking/internal/logger"
	"github.com/azurestay/booking/internal/queue"
	"github.com/azurestay/booking/internal/repository"
	"github.com/azurestay/booking/internal/router"
	"github.com/azurestay/booking/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	db, err := database.Open(database.Config{
		User:            cfg.DBUser,
		Pass:            cfg.DBPass,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
	})
	if err != nil {
		zlog.Fatalw("database connect failed", "err", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		zlog.Warn("redis unavailable, rate limiting and response cache disabled")
	}

	userRepo := repository.NewUserRepo(db)
	tokenRepo := repository.NewTokenRepo(db)
	reservationRepo := repository.NewReservationRepo(db)
	paymentRepo := repository.NewPaymentRepo(db)

	publisher := queue.NewPublisher(cfg.AMQPURL, zlog)
	notifier := queue.NewNotifier(publisher)
	go queue.StartNotificationConsumer(cfg.AMQPURL, zlog)

	checkout := gateway.NewStripeClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	if cfg.StripeWebhookSecret == "" {
		zlog.Warn("STRIPE_WEBHOOK_SECRET not set, webhook signature verification disabled")
	}

	reservationSvc := service.NewReservationService(reservationRepo, paymentRepo, notifier, zlog)
	paymentSvc := service.NewPaymentService(paymentRepo, reservationRepo, userRepo,
		reservationSvc, checkout, service.PaymentServiceConfig{
			Currency:   cfg.Currency,
			SuccessURL: cfg.CheckoutSuccessURL,
			CancelURL:  cfg.CheckoutCancelURL,
		}, zlog)

	authHandler := handler.NewAuthHandler(userRepo, tokenRepo, cfg, zlog)
	reservationHandler := handler.NewReservationHandler(reservationSvc, zlog)
	paymentHandler := handler.NewPaymentHandler(paymentSvc, checkout, zlog)

	e := echo.New()
	e.HideBanner = true
	router.Register(e, cfg, rdb, authHandler, reservationHandler, paymentHandler)

	zlog.Infow("starting server", "port", cfg.Port, "env", cfg.Env)
	if err := e.Start(":" + cfg.Port); err != nil {
		zlog.Fatalw("server stopped", "err", err)
	}
}

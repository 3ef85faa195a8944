package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukkanhq/dukkan-backend/config"
	"github.com/dukkanhq/dukkan-backend/internal/app/controller"
	"github.com/dukkanhq/dukkan-backend/internal/app/repository"
	"github.com/dukkanhq/dukkan-backend/internal/app/service"
	"github.com/dukkanhq/dukkan-backend/internal/db"
	"github.com/dukkanhq/dukkan-backend/internal/middleware"
	"github.com/dukkanhq/dukkan-backend/internal/router"
	"github.com/dukkanhq/dukkan-backend/internal/scheduler"
	"github.com/dukkanhq/dukkan-backend/pkg/logger"
	"github.com/dukkanhq/dukkan-backend/pkg/payment/paymob"
	"github.com/dukkanhq/dukkan-backend/pkg/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logLevel := "info"
	if cfg.Server.Environment == "development" {
		logLevel = "debug"
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      "console", // Use "json" for production
		EnableColor: true,
	})

	logger.Info("Starting DUKKAN Backend Server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   logLevel,
	})

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	// Run migrations
	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Initialize Redis (token revocation). The server still works without
	// it; logout then simply cannot revoke tokens early.
	if err := redis.Init(&cfg.Redis); err != nil {
		logger.Warn("Redis unavailable, token revocation disabled", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer func() {
		if err := redis.Close(); err != nil {
			logger.Error("Failed to close Redis connection", err)
		}
	}()

	// Initialize payment gateway client
	paymobClient, err := paymob.NewClient(paymob.Config{
		APIKey:        cfg.Payment.Paymob.APIKey,
		IntegrationID: cfg.Payment.Paymob.IntegrationID,
		IframeID:      cfg.Payment.Paymob.IframeID,
		BaseURL:       cfg.Payment.Paymob.BaseURL,
		HMACSecret:    cfg.Payment.Paymob.HMACSecret,
		Currency:      cfg.Payment.Paymob.Currency,
	})
	if err != nil {
		logger.Fatal("Failed to initialize payment gateway client", err)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db.GetDB())
	productRepo := repository.NewProductRepository(db.GetDB())
	orderRepo := repository.NewOrderRepository(db.GetDB())
	cartRepo := repository.NewCartRepository(db.GetDB())

	// Initialize services
	authService := service.NewAuthService(
		userRepo,
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)
	productService := service.NewProductService(productRepo)
	cartService := service.NewCartService(cartRepo, productRepo, db.GetDB())
	orderService := service.NewOrderService(orderRepo, cartRepo, db.GetDB())
	paymentService := service.NewPaymentService(orderRepo, paymobClient)

	// Initialize controllers
	authController := controller.NewAuthController(authService, cartService, cfg.JWT.Secret)
	productController := controller.NewProductController(productService)
	cartController := controller.NewCartController(cartService)
	orderController := controller.NewOrderController(orderService)
	paymentController := controller.NewPaymentController(paymentService, orderService)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	// Start the stale payment expiry job
	expiryScheduler := scheduler.NewOrderExpiryScheduler(orderService, cfg.Orders.PendingPaymentExpiry)
	if err := expiryScheduler.Start(); err != nil {
		logger.Fatal("Failed to start order expiry scheduler", err)
	}
	defer expiryScheduler.Stop()

	// Setup router
	r := router.NewRouter(
		authController,
		productController,
		cartController,
		orderController,
		paymentController,
		authMiddleware,
		cfg,
	)
	engine := r.Setup()

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server started successfully", map[string]interface{}{
			"address": addr,
			"pid":     os.Getpid(),
		})
		if err := engine.Run(addr); err != nil {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")
	logger.Info("Server stopped successfully")
}

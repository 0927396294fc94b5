// Package main runs the event-registration HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Tiburon07/adnks/config"
	"github.com/Tiburon07/adnks/internal/checkins"
	"github.com/Tiburon07/adnks/internal/mailchimp"
	"github.com/Tiburon07/adnks/internal/middleware"
	"github.com/Tiburon07/adnks/internal/registrations"
	"github.com/Tiburon07/adnks/pkg/database"
	"github.com/Tiburon07/adnks/pkg/redis"
	"github.com/Tiburon07/adnks/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	// Redis only backs the rate limiter, which fails open; the service still
	// registers attendees without it.
	var rdbClient *goredis.Client
	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Warn("redis unavailable, rate limiting disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		rdbClient = rdb.Client
	}

	directory := mailchimp.NewClient(
		cfg.Mailchimp.APIKey,
		cfg.Mailchimp.ListID,
		cfg.Mailchimp.ServerPrefix,
		cfg.Mailchimp.Timeout,
		logger,
	)

	// Registrations
	registrationRepo := registrations.NewRepository(pool)
	registrationService := registrations.NewService(registrationRepo, directory, logger)
	registrationHandler := registrations.NewHandler(registrationService, logger)

	// Provider webhook
	reconciler := registrations.NewReconciler(registrationRepo, logger)
	webhookHandler := registrations.NewWebhookHandler(reconciler, registrationRepo, cfg.Mailchimp.WebhookSecret, logger)

	// Check-ins (staff)
	checkinRepo := checkins.NewRepository(pool)
	checkinHandler := checkins.NewHandler(checkinRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) { response.MethodNotAllowed(c, "method not allowed") })

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Public: event registration (rate limited per client IP)
	router.POST("/event-registration",
		middleware.RateLimit(cfg.RateLimit, rdbClient, logger),
		registrationHandler.Register)

	// Provider callbacks (no auth; signature verified in handler when configured)
	router.GET("/mailchimp/webhook", webhookHandler.Handshake)
	router.POST("/mailchimp/webhook", webhookHandler.Deliver)

	// Staff API (opaque bearer token)
	staff := router.Group("")
	staff.Use(middleware.StaffToken(cfg.Auth.StaffTokenSHA256))
	{
		staff.GET("/events/:id/checkins", checkinHandler.List)
		staff.POST("/event-checkin-update", checkinHandler.Update)
		staff.PUT("/event-checkin-update", checkinHandler.Update)
		staff.PATCH("/event-checkin-update", checkinHandler.Update)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

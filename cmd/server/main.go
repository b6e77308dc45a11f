// Package main runs the course subscription API server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edulist/backend/config"
	"github.com/edulist/backend/internal/auth"
	"github.com/edulist/backend/internal/coupons"
	"github.com/edulist/backend/internal/institutions"
	"github.com/edulist/backend/internal/middleware"
	"github.com/edulist/backend/internal/models"
	"github.com/edulist/backend/internal/payments"
	"github.com/edulist/backend/internal/receipts"
	"github.com/edulist/backend/internal/settlement"
	"github.com/edulist/backend/internal/worker"
	"github.com/edulist/backend/pkg/database"
	"github.com/edulist/backend/pkg/queue"
	"github.com/edulist/backend/pkg/redis"
	"github.com/edulist/backend/pkg/response"
	"github.com/edulist/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Razorpay.WebhookSecret == "" {
		logger.Warn("RAZORPAY_WEBHOOK_SECRET not set; every webhook will be rejected")
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ReceiptsBucket:       cfg.AWS.ReceiptsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled; receipts unavailable", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	if err := auth.EnsureAdmin(ctx, authRepo, cfg.Admin.Email, cfg.Admin.Password, logger); err != nil {
		logger.Fatal("seed admin", zap.Error(err))
	}

	// Institutions and courses
	institutionRepo := institutions.NewRepository(pool)
	institutionHandler := institutions.NewHandler(institutionRepo, logger)

	// Coupons
	couponRepo := coupons.NewRepository(pool)
	couponHandler := coupons.NewHandler(couponRepo, logger)

	// Payments
	ledger := payments.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	paymentService := payments.NewService(
		institutionRepo,
		coupons.NewValidator(couponRepo),
		payments.NewRazorpayProvider(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret),
		settlement.NewRedisStore(rdb.Client, logger),
		ledger,
		jobQueue,
		payments.Options{
			Currency:      cfg.Payment.Currency,
			WebhookSecret: cfg.Razorpay.WebhookSecret,
			ContextTTL:    cfg.Payment.ContextTTL(),
			ReceiptPrefix: cfg.Payment.ReceiptPrefix,
		},
		logger,
	)
	paymentHandler := payments.NewHandler(paymentService, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		hctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := gin.H{"status": "ok", "database": "ok", "redis": "ok"}
		healthy := true
		if err := pool.Ping(hctx); err != nil {
			status["database"], healthy = "down", false
		}
		if !rdb.Healthy(hctx) {
			status["redis"], healthy = "down", false
		}
		if !healthy {
			status["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, response.Body{Success: false, Data: status, Error: "dependency unavailable"})
			return
		}
		response.OK(c, status)
	})

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Payment provider callback (no JWT; HMAC signature checked by the service)
	router.POST("/payments/webhook", paymentHandler.Webhook)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		owner := middleware.RequireRole(models.RoleInstitutionAdmin)

		api.POST("/institutions", owner, institutionHandler.Create)
		api.GET("/institutions/me", owner, institutionHandler.Me)
		api.POST("/institutions/me/courses", owner, institutionHandler.CreateCourse)

		api.POST("/orders", owner, paymentHandler.CreateOrder)
		api.POST("/orders/preview", owner, paymentHandler.PreviewOrder)
		api.POST("/coupons/validate", owner, paymentHandler.ValidateCoupon)
		api.GET("/subscriptions/status", owner, paymentHandler.SubscriptionStatus)
		if s3Client != nil {
			receiptHandler := receipts.NewHandler(institutionRepo, ledger, s3Client, logger)
			api.GET("/subscriptions/receipt", owner, receiptHandler.Get)
		}

		admin := api.Group("/admin", middleware.RequireRole(models.RoleAdmin))
		admin.POST("/coupons", couponHandler.Create)
		admin.GET("/coupons", couponHandler.List)
		admin.PATCH("/coupons/:code", couponHandler.SetActive)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Optional in-process receipt worker; cmd/worker is the usual deployment
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Worker.InProcess && s3Client != nil {
		go worker.NewReceiptProcessor(s3Client, jobQueue, logger).Run(workerCtx)
		logger.Info("receipt worker started in-process")
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

	workerCancel()
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

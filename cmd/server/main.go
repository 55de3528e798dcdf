package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/churchhub/churchhub-api/internal/audit"
	"github.com/churchhub/churchhub-api/internal/config"
	"github.com/churchhub/churchhub-api/internal/crypto"
	"github.com/churchhub/churchhub-api/internal/database"
	"github.com/churchhub/churchhub-api/internal/handlers"
	"github.com/churchhub/churchhub-api/internal/logging"
	"github.com/churchhub/churchhub-api/internal/middleware"
	"github.com/churchhub/churchhub-api/internal/queue"
	"github.com/churchhub/churchhub-api/internal/routes"
	"github.com/churchhub/churchhub-api/internal/services"
	"github.com/churchhub/churchhub-api/internal/usercache"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}
	if cfg.EncryptionKey == "" {
		slog.Error("ENCRYPTION_KEY environment variable is required")
		os.Exit(1)
	}

	codec, err := crypto.NewCodec(cfg.EncryptionKey)
	if err != nil {
		slog.Error("invalid encryption key", "error", err)
		os.Exit(1)
	}

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		pgLogHandler,
	)))

	// Log cleanup (30-day retention, system logs only)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cleanupDone)

	// Redis user cache (optional)
	redisClient := usercache.NewRedisClient(cfg)
	if redisClient == nil && cfg.RedisAddr != "" {
		slog.Warn("redis unreachable, webhook user lookups will hit the database")
	}
	userCache := usercache.New(redisClient, cfg.UserCacheTTL)

	// Background job publisher (optional)
	var jobs queue.Publisher
	if cfg.AMQPURL != "" {
		jobs, err = queue.NewAMQPPublisher(cfg.AMQPURL, cfg.JobQueue)
		if err != nil {
			slog.Error("rabbitmq connection failed", "error", err)
			os.Exit(1)
		}
		slog.Info("job queue connected", "queue", cfg.JobQueue)
	} else {
		slog.Warn("AMQP_URL not set, background jobs disabled")
		jobs = queue.Nop{}
	}

	// Services
	recorder := audit.New(database.DB)
	bookingService := services.NewBookingService(database.DB, codec, recorder, jobs)
	webhookService := services.NewWebhookService(database.DB, codec, recorder, userCache, jobs)
	userService := services.NewUserService(database.DB, userCache)

	// Handlers
	bookingHandler := handlers.NewBookingHandler(bookingService)
	webhookHandler := handlers.NewWebhookHandler(webhookService, cfg)
	adminHandler := handlers.NewAdminHandler(userService, recorder, jobs)
	healthHandler := handlers.NewHealthHandler()

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      os.Getenv("APP_ENV"),
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    4 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	// Routes
	routes.Setup(app, cfg, bookingHandler, webhookHandler, adminHandler, healthHandler)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	if err := jobs.Close(); err != nil {
		slog.Error("job queue close error", "error", err)
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}
	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}

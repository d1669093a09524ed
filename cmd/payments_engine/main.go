package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	portssvc "github.com/afyapay/payments_engine/internal/core/ports/services"
	"github.com/afyapay/payments_engine/internal/core/services"
	"github.com/afyapay/payments_engine/internal/events/kafka"
	"github.com/afyapay/payments_engine/internal/gateway"
	"github.com/afyapay/payments_engine/internal/handlers"
	"github.com/afyapay/payments_engine/internal/middleware"
	"github.com/afyapay/payments_engine/internal/platform/config"
	"github.com/afyapay/payments_engine/internal/repositories/database/pgsql"
	"github.com/afyapay/payments_engine/pkg/database"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Running database migrations...")
	if err := database.RunMigrations(cfg.DatabaseURL, "migrations"); err != nil {
		logger.Error("Failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dbPool, err := database.NewPgxPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer database.ClosePgxPool(dbPool)
	logger.Info("Database connection pool established.")

	repos := pgsql.NewRepositoryProvider(dbPool)

	var publisher portssvc.EventPublisher = kafka.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		logger.Info("Kafka publisher enabled", slog.String("topic", cfg.KafkaTopic))
	}

	svcContainer := services.NewServiceContainer(
		repos,
		gateway.NewSimulatedGateway(),
		publisher,
		services.PaymentConfig{
			ClaimTTL:          cfg.ClaimTTL,
			ResultTTL:         cfg.ResultTTL,
			FingerprintWindow: cfg.FingerprintWindow,
			GatewayTimeout:    cfg.GatewayTimeout,
		},
		services.ReconcilerConfig{
			EventTTL:  cfg.WebhookEventTTL,
			ResultTTL: cfg.ResultTTL,
		},
	)

	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.StructuredLoggingMiddleware(logger), gin.Recovery())
	r.Use(cors.Default())

	if err := r.SetTrustedProxies(nil); err != nil {
		logger.Error("Failed to set trusted proxies", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rate, err := limiter.NewRateFromFormatted(cfg.RateLimit)
	if err != nil {
		logger.Error("Invalid rate limit format", slog.String("rate_limit", cfg.RateLimit), slog.String("error", err.Error()))
		os.Exit(1)
	}
	rateLimiter := limiter.New(memory.NewStore(), rate)

	handlers.RegisterRoutes(r, cfg, svcContainer, rateLimiter)

	logger.Info("Server starting", slog.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Error("Server failed to run", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

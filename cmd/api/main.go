package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/quintaserp/webhook-service/internal/auth"
	"github.com/quintaserp/webhook-service/internal/config"
	"github.com/quintaserp/webhook-service/internal/handler"
	"github.com/quintaserp/webhook-service/internal/infra/postgresql"
	"github.com/quintaserp/webhook-service/internal/infra/postgresql/migrations"
	infraredis "github.com/quintaserp/webhook-service/internal/infra/redis"
	"github.com/quintaserp/webhook-service/internal/observability"
	"github.com/quintaserp/webhook-service/internal/repository"
	"github.com/quintaserp/webhook-service/internal/sender"
	"github.com/quintaserp/webhook-service/internal/service"
	"github.com/quintaserp/webhook-service/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	dispatchLockKey = "webhook:dispatch:lock"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	verifier, err := auth.NewIntrospectionVerifier(cfg.IntrospectionURL, cfg.IntrospectionToken)
	if err != nil {
		logger.Fatal("introspection verifier init failed", zap.Error(err))
	}

	subscriptionRepo := repository.NewGormSubscriptionRepo(db)
	deliveryRepo := repository.NewGormDeliveryRepo(db)

	subscriptionService, err := service.NewSubscriptionService(subscriptionRepo, deliveryRepo, logger)
	if err != nil {
		logger.Fatal("subscription service init failed", zap.Error(err))
	}

	publisher, err := service.NewEventPublisher(subscriptionRepo, deliveryRepo, logger)
	if err != nil {
		logger.Fatal("event publisher init failed", zap.Error(err))
	}

	tickLock, err := infraredis.NewTickLock(rdb, dispatchLockKey, 0)
	if err != nil {
		logger.Fatal("dispatch lock init failed", zap.Error(err))
	}

	webhookSender := sender.NewHTTPSender(time.Duration(cfg.DeliveryTimeoutMS) * time.Millisecond)

	dispatcher, err := service.NewDispatcher(
		deliveryRepo,
		subscriptionRepo,
		webhookSender,
		tickLock,
		service.DispatcherOptions{
			Interval:         time.Duration(cfg.DispatchIntervalSec) * time.Second,
			BatchSize:        cfg.DispatchBatchSize,
			MaxAttempts:      cfg.MaxAttempts,
			FailureThreshold: cfg.FailureThreshold,
			Concurrency:      cfg.DispatchConcurrency,
		},
		logger,
	)
	if err != nil {
		logger.Fatal("dispatcher init failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	dispatcher.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(transport.RequestContext())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterSubscriptionRoutes(app, subscriptionService, verifier); err != nil {
		logger.Fatal("subscription routes init failed", zap.Error(err))
	}
	if err := handler.RegisterEventRoutes(app, publisher, verifier); err != nil {
		logger.Fatal("event routes init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("webhook dispatcher started",
			zap.Int("intervalSec", cfg.DispatchIntervalSec),
			zap.Int("batchSize", cfg.DispatchBatchSize),
		)
		return dispatcher.Start(gCtx)
	})

	g.Go(func() error {
		logger.Info("webhook api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("service terminated", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

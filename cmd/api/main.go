package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/contesthub/mailing-engine/internal/config"
	"github.com/contesthub/mailing-engine/internal/dispatcher"
	"github.com/contesthub/mailing-engine/internal/handler"
	"github.com/contesthub/mailing-engine/internal/infra/postgresql"
	"github.com/contesthub/mailing-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/contesthub/mailing-engine/internal/infra/redis"
	"github.com/contesthub/mailing-engine/internal/mailer"
	"github.com/contesthub/mailing-engine/internal/observability"
	"github.com/contesthub/mailing-engine/internal/queue"
	"github.com/contesthub/mailing-engine/internal/ratelimit"
	"github.com/contesthub/mailing-engine/internal/repository"
	"github.com/contesthub/mailing-engine/internal/resolver"
	"github.com/contesthub/mailing-engine/internal/service"
	"github.com/contesthub/mailing-engine/internal/transport"
	"github.com/go-resty/resty/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const consumerPrefetch = 16

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
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

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	campaignRepo := repository.NewGormCampaignRepo(db)
	deliveryRepo := repository.NewGormDeliveryRepo(db)
	teamRegistry := repository.NewGormTeamRegistry(db)

	recipientResolver, err := resolver.New(teamRegistry)
	if err != nil {
		logger.Fatal("resolver initialization failed", zap.Error(err))
	}

	var sender mailer.Mailer
	if cfg.MailRelayURL != "" {
		client := resty.New().SetTimeout(cfg.MailRelayTimeout)
		sender, err = mailer.NewRelayMailerWithClient(cfg.MailRelayURL, client)
		if err != nil {
			logger.Fatal("mail relay initialization failed", zap.Error(err))
		}
	} else {
		logger.Warn("no mail relay configured, outbound mail will only be logged")
		sender = mailer.NewLogMailer(logger)
	}

	var limiter ratelimit.RateLimiter = ratelimit.Unlimited{}
	if cfg.RateLimitPerSec > 0 {
		limiter, err = infraredis.NewSendRateLimiter(rdb, cfg.RateLimitPerSec)
		if err != nil {
			logger.Fatal("rate limiter initialization failed", zap.Error(err))
		}
	}

	metrics := observability.NewMetrics()

	publisher := queue.NewRabbitMQPublisher(rabbit)
	defer publisher.Close()
	consumer := queue.NewRabbitMQConsumer(rabbit, consumerPrefetch, logger)
	defer consumer.Close()

	campaignDispatcher, err := dispatcher.NewDispatcher(
		campaignRepo,
		deliveryRepo,
		recipientResolver,
		consumer,
		sender,
		limiter,
		cfg.DispatchConcurrency,
		logger,
	)
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}
	campaignDispatcher.SetMetrics(metrics)

	campaignService, err := service.NewCampaignService(campaignRepo, deliveryRepo, recipientResolver, publisher, logger)
	if err != nil {
		logger.Fatal("campaign service initialization failed", zap.Error(err))
	}

	scheduler, err := service.NewScheduler(campaignRepo, publisher, cfg.SchedulerInterval, 0, logger)
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}

	reconciler, err := service.NewReconciler(deliveryRepo, 0, cfg.StalePendingAfter, logger)
	if err != nil {
		logger.Fatal("reconciler initialization failed", zap.Error(err))
	}
	reconciler.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterCampaignRoutes(app, campaignService); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return campaignDispatcher.Start(groupCtx)
	})
	g.Go(func() error {
		return scheduler.Start(groupCtx)
	})
	g.Go(func() error {
		return reconciler.Start(groupCtx)
	})
	g.Go(func() error {
		logger.Info("mailing-engine api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.Shutdown()
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("mailing-engine stopped with error", zap.Error(err))
	}

	logger.Info("mailing-engine shut down")
}

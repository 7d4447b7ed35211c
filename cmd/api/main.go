package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/kursadbilgin/campaign-engine/internal/config"
	"github.com/kursadbilgin/campaign-engine/internal/gateway"
	"github.com/kursadbilgin/campaign-engine/internal/handler"
	"github.com/kursadbilgin/campaign-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/campaign-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/campaign-engine/internal/infra/redis"
	"github.com/kursadbilgin/campaign-engine/internal/observability"
	"github.com/kursadbilgin/campaign-engine/internal/queue"
	"github.com/kursadbilgin/campaign-engine/internal/ratelimit"
	"github.com/kursadbilgin/campaign-engine/internal/repository"
	"github.com/kursadbilgin/campaign-engine/internal/service"
	"github.com/kursadbilgin/campaign-engine/internal/transport"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Room for the numbers sheet and form fields next to the media file.
const uploadOverheadBytes = 16 << 20

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("campaign-engine api stopped with error", zap.Error(err))
	}
	logger.Info("campaign-engine api stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	if err := postgresql.Ping(ctx, db); err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	metrics := observability.NewMetrics()

	var (
		rdb     *goredis.Client
		lease   *infraredis.Lease
		limiter ratelimit.RateLimiter = ratelimit.NewLocalLimiter(cfg.TestMessageRatePerSec)
	)
	if cfg.RedisURL != "" {
		rdb, err = infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()

		if err := infraredis.Ping(ctx, rdb); err != nil {
			return err
		}

		redisLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.TestMessageRatePerSec)
		if err != nil {
			return fmt.Errorf("redis rate limiter init failed: %w", err)
		}
		limiter = redisLimiter

		lease, err = infraredis.NewLease(rdb, instanceID(), cfg.LeaseTTL())
		if err != nil {
			return fmt.Errorf("campaign lease init failed: %w", err)
		}
	} else {
		logger.Warn("REDIS_URL is not set, running single-instance without campaign leases")
	}

	var publisher queue.Publisher
	if cfg.RabbitMQURL != "" {
		mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		rabbitPublisher := queue.NewRabbitMQPublisher(mq)
		defer rabbitPublisher.Close()
		publisher = rabbitPublisher
	}

	campaigns := repository.NewGormCampaignRepo(db)
	settingsRepo := repository.NewGormSettingsRepo(db)

	settingsSvc, err := service.NewSettingsService(settingsRepo, cfg.DefaultGatewaySettings(), logger)
	if err != nil {
		return fmt.Errorf("settings service init failed: %w", err)
	}

	whatsgate, err := gateway.NewWhatsGateClient(settingsSvc, cfg.GatewayTimeout())
	if err != nil {
		return fmt.Errorf("whatsgate client init failed: %w", err)
	}
	settingsSvc.SetConnectionChecker(whatsgate)

	gw := gateway.NewBreakerGateway(whatsgate, gateway.BreakerConfig{
		FailureThreshold: uint32(cfg.GatewayBreakerFailures),
		OpenTimeout:      cfg.GatewayBreakerOpen(),
	}, logger, metrics)

	dispatcher, err := service.NewDispatcher(campaigns, gw, publisher, service.DispatcherConfig{
		SendTimeout:      cfg.GatewayTimeout(),
		UnreachableAfter: cfg.GatewayUnreachableAfter(),
	}, logger)
	if err != nil {
		return fmt.Errorf("dispatcher init failed: %w", err)
	}
	dispatcher.SetMetrics(metrics)
	if lease != nil {
		dispatcher.SetLease(lease, cfg.LeaseTTL())
	}

	campaignSvc, err := service.NewCampaignService(
		campaigns,
		dispatcher,
		publisher,
		cfg.MaxMessagesPerHour,
		cfg.MaxMediaBytes,
		logger,
	)
	if err != nil {
		return fmt.Errorf("campaign service init failed: %w", err)
	}
	campaignSvc.SetMetrics(metrics)

	messagingSvc, err := service.NewMessagingService(gw, limiter, cfg.GatewayTimeout(), cfg.MaxMediaBytes, logger)
	if err != nil {
		return fmt.Errorf("messaging service init failed: %w", err)
	}
	messagingSvc.SetMetrics(metrics)

	recovery, err := service.NewRecoveryScanner(campaigns, dispatcher, cfg.RecoveryScanInterval(), 0, logger)
	if err != nil {
		return fmt.Errorf("recovery scanner init failed: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:               "campaign-engine",
		ErrorHandler:          transport.ErrorHandler(logger),
		BodyLimit:             int(cfg.MaxMediaBytes) + uploadOverheadBytes,
		DisableStartupMessage: true,
	})
	app.Use(observability.CorrelationMiddleware())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, sqlDB, rdb, gw.State)
	if err := handler.RegisterCampaignRoutes(app, campaignSvc); err != nil {
		return fmt.Errorf("campaign routes init failed: %w", err)
	}
	if err := handler.RegisterMessagingRoutes(app, messagingSvc); err != nil {
		return fmt.Errorf("messaging routes init failed: %w", err)
	}
	if err := handler.RegisterSettingsRoutes(app, settingsSvc); err != nil {
		return fmt.Errorf("settings routes init failed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("campaign-engine api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return recovery.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()

		var errs []error
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		// In-flight sends are recorded; campaigns stay started for the next instance.
		if err := dispatcher.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "campaign-engine"
	}
	return host + "-" + uuid.NewString()[:8]
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-checkout/internal/app"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/database"
	"storefront-checkout/internal/infrastructure/messaging"
	"storefront-checkout/internal/infrastructure/payment"
	"storefront-checkout/internal/infrastructure/ratelimit"
	"storefront-checkout/internal/infrastructure/storage"
	"storefront-checkout/internal/observability"
	"storefront-checkout/internal/pkg/logging"
	"storefront-checkout/internal/repo/memory"
	httptransport "storefront-checkout/internal/transport/http"
	"storefront-checkout/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.MustNewLogger("storefront", cfg.AppEnv, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("storefront_exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
		if cfg.StripeWebhookSecret == "" {
			return errors.New("STRIPE_WEBHOOK_SECRET is required in production")
		}
	}

	var (
		repos  app.Repos
		health httptransport.HealthChecker
	)
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("store_backend_memory", zap.String("hint", "state is lost on restart"))
		repos = app.MemoryRepos(memory.NewStore())
	default:
		db, err := database.NewPostgres(cfg.DB)
		if err != nil {
			return err
		}
		dbService := database.New(db, cfg.DB.Database, logger)
		defer dbService.Close()
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		repos = app.PostgresRepos(db)
		health = dbService
	}

	var gateway payment.PaymentGateway
	if cfg.StripeSecretKey != "" {
		gateway = payment.NewStripeGateway(cfg.StripeSecretKey)
	} else {
		logger.Warn("payment_gateway_mock", zap.String("hint", "set STRIPE_SECRET_KEY to use the real processor"))
		gateway = payment.NewMockGateway()
	}

	publisher := messaging.NewNopPublisher()
	if len(cfg.KafkaBrokers) > 0 {
		publisher = messaging.NewKafkaPublisher(cfg.KafkaBrokers)
	}
	defer publisher.Close()

	limiter := ratelimit.NewNoLimit()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis_unreachable", zap.Error(err))
		}
		limiter = ratelimit.NewRedisLimiter(rdb, "storefront:downloads", cfg.DownloadRateLimit, cfg.DownloadRateWindow)
	}

	files := storage.NewLocalFS(cfg.DownloadDir)
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	svc := app.NewServices(repos, app.Options{
		Gateway:   gateway,
		Publisher: publisher,
		Files:     files,
		Metrics:   metrics,
		Logger:    logger,
		Currency:  cfg.Currency,
		Topic:     cfg.KafkaOrderTopic,
	})

	reconciler := worker.NewReconciliationWorker(repos.Payments, repos.Orders, gateway, svc.Settlement,
		cfg.ReconcileInterval, cfg.ReconcileAfter, logger)
	go reconciler.Run(ctx)

	router := httptransport.NewRouter(httptransport.Deps{
		Orders:     svc.Orders,
		Delivery:   svc.Delivery,
		Settlement: svc.Settlement,
		Verifier:   payment.NewWebhookVerifier(cfg.StripeWebhookSecret, logger),
		Limiter:    limiter,
		Files:      files,
		Auth:       httptransport.HeaderAuthenticator{},
		Health:     health,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

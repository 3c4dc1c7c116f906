package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/health"
	"github.com/vladislavdragonenkov/shop/internal/httpapi"
	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/account"
	"github.com/vladislavdragonenkov/shop/internal/service/checkout"
	"github.com/vladislavdragonenkov/shop/internal/service/deliveries"
	"github.com/vladislavdragonenkov/shop/internal/service/orders"
	"github.com/vladislavdragonenkov/shop/internal/service/outbox"
	"github.com/vladislavdragonenkov/shop/internal/service/webhook"
	"github.com/vladislavdragonenkov/shop/internal/version"
)

// Run поднимает API, служебный сервер и воркеры и блокируется до отмены ctx.
// При штатной остановке возвращает ctx.Err().
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	gateway, err := newPaymentGateway(cfg, logger.WithField("layer", "payment"))
	if err != nil {
		return err
	}

	producer, err := initKafkaProducer(cfg, logger)
	if err != nil {
		return err
	}
	defer closeKafka(producer, logger)

	// Без брокера события заказа не копятся в outbox.
	var outboxRepo domain.OutboxRepository
	if producer != nil {
		outboxRepo = deps.outbox
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Catalog:  deps.catalog,
		Accounts: account.NewService(deps.users, cfg.BcryptCost, logger.WithField("layer", "account")),
		Checkout: checkout.NewService(deps.catalog, deps.users, deps.orders, gateway,
			logger.WithField("layer", "checkout"),
			checkout.WithMetrics(metrics.NewCheckoutMetrics()),
			checkout.WithOutbox(outboxRepo),
		),
		Orders: orders.NewService(deps.orders, deps.catalog, gateway, cfg.HistoryLimit, logger.WithField("layer", "orders")),
		Webhooks: webhook.NewHandler(gateway, deps.orders, logger.WithField("layer", "webhook"),
			webhook.WithDeliveries(deps.deliveries),
			webhook.WithDeliveryTTL(cfg.DeliveryTTL),
			webhook.WithOutbox(outboxRepo),
			webhook.WithMetrics(metrics.NewWebhookMetrics()),
		),
		Metrics: metrics.NewHTTPMetrics(),
		Logger:  logger.WithField("layer", "http"),
		BaseURL: cfg.BaseURL,
	})

	info := version.Get()
	healthHandler := health.NewHandler(info.Version)
	healthHandler.Register(deps.checker)

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	opsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: newOpsMux(healthHandler), ReadHeaderTimeout: 5 * time.Second}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	startWorkers(workerCtx, &workers, cfg, deps, producer, logger)

	errCh := make(chan error, 2)
	serve(opsSrv, "ops", logger, errCh)
	serve(apiSrv, "api", logger, errCh)
	logger.WithField("version", info.String()).Info("shop service started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		runErr = ctx.Err()
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownHTTP(apiSrv, cfg.ShutdownTimeout, logger)
	stopWorkers()
	workers.Wait()
	shutdownHTTP(opsSrv, cfg.ShutdownTimeout, logger)
	return runErr
}

// startWorkers запускает outbox-публикацию (при наличии Kafka) и очистку доставок webhook.
func startWorkers(ctx context.Context, wg *sync.WaitGroup, cfg Config, deps *runtimeDependencies, producer *kafka.Producer, logger *log.Entry) {
	if producer != nil {
		worker := outbox.NewWorker(deps.outbox, kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
			outbox.WithLogger(logger.WithField("layer", "outbox")),
			outbox.WithDeadLetter(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetter)),
			outbox.WithMetrics(metrics.NewOutboxMetrics()),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}

	cleanup := deliveries.NewCleanupWorker(deps.deliveries,
		deliveries.WithLogger(logger.WithField("layer", "delivery-cleanup")),
		deliveries.WithMetrics(metrics.NewCleanupMetrics()),
		deliveries.WithInterval(cfg.DeliveryCleanupInterval),
		deliveries.WithBatchSize(cfg.DeliveryCleanupBatchSize),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		cleanup.Run(ctx)
	}()
}

package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/health"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
	"github.com/vladislavdragonenkov/shop/internal/storage/postgres"
)

// runtimeDependencies: репозитории выбранного хранилища.
type runtimeDependencies struct {
	catalog    domain.CatalogRepository
	users      domain.UserRepository
	orders     domain.OrderRepository
	outbox     domain.OutboxRepository
	deliveries domain.IdempotencyRepository
	// checker проверяет доступность хранилища для /healthz.
	checker health.Checker
	close   func() error
}

// initRuntimeDependencies открывает хранилище и собирает репозитории.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		logger.Info("using in-memory storage with demo catalog")
		return &runtimeDependencies{
			catalog:    memory.NewDemoCatalogRepository(),
			users:      memory.NewUserRepository(),
			orders:     memory.NewOrderRepository(),
			outbox:     memory.NewOutboxRepository(),
			deliveries: memory.NewIdempotencyRepository(),
			checker: health.CheckFunc{
				ComponentName: "storage",
				Fn:            func(context.Context) error { return nil },
			},
			close: func() error { return nil },
		}, nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required for %s storage", StorageDriverPostgres)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		return &runtimeDependencies{
			catalog:    postgres.NewCatalogRepository(store),
			users:      postgres.NewUserRepository(store),
			orders:     postgres.NewOrderRepository(store),
			outbox:     postgres.NewOutboxRepository(store),
			deliveries: postgres.NewIdempotencyRepository(store),
			checker:    store,
			close:      store.Close,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedStorage, cfg.StorageDriver)
	}
}

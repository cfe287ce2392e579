package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/warehouse/internal/health"
	"github.com/vladislavdragonenkov/warehouse/internal/storage/memory"
	"github.com/vladislavdragonenkov/warehouse/internal/storage/postgres"
)

// storage — общее поведение in-memory и postgres хранилищ, нужное приложению.
type storage interface {
	domain.UnitOfWorkFactory
	Outbox() domain.OutboxRepository
	Ping(ctx context.Context) error
	Close() error
}

type runtimeDependencies struct {
	store          storage
	storageChecker healthcheck.Checker
	closeFn        func() error
}

func (d *runtimeDependencies) close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// initRuntimeDependencies открывает хранилище, выбранное в cfg.StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	var store storage
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		store = memory.NewStore()
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires WAREHOUSE_POSTGRES_DSN")
		}
		pg, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				_ = pg.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		store = pg
		logger.Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	return &runtimeDependencies{
		store:          store,
		storageChecker: healthcheck.NewStorageChecker(store),
		closeFn:        store.Close,
	}, nil
}

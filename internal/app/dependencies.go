package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/ordercore/internal/health"
	"github.com/vladislavdragonenkov/ordercore/internal/metrics"
	"github.com/vladislavdragonenkov/ordercore/internal/storage/cache"
	"github.com/vladislavdragonenkov/ordercore/internal/storage/memory"
	"github.com/vladislavdragonenkov/ordercore/internal/storage/relational"
)

// runtimeDependencies держит хранилище и всё, что нужно закрыть при остановке.
type runtimeDependencies struct {
	repo           domain.OrderRepository
	storageChecker healthcheck.Checker
	closeFn        func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

// initRuntimeDependencies выбирает хранилище по конфигурации.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry, m *metrics.OrderMetrics) (*runtimeDependencies, error) {
	driver, err := ParseStorageDriver(string(cfg.StorageDriver))
	if err != nil {
		return nil, err
	}

	switch driver {
	case StorageDriverMemory:
		logger.Info("using in-memory order storage")
		return &runtimeDependencies{repo: memory.NewOrderRepository()}, nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires OMS_POSTGRES_DSN")
		}
		return initRelationalDependencies(ctx, relational.DriverPostgres, cfg.PostgresDSN, cfg, logger, m)
	default:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite storage requires OMS_SQLITE_PATH")
		}
		return initRelationalDependencies(ctx, relational.DriverSQLite, cfg.SQLitePath, cfg, logger, m)
	}
}

func initRelationalDependencies(
	ctx context.Context,
	driver relational.Driver,
	dsn string,
	cfg Config,
	logger *log.Entry,
	m *metrics.OrderMetrics,
) (*runtimeDependencies, error) {
	store, err := relational.Open(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", driver, err)
	}

	if cfg.DBAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate %s storage: %w", driver, err)
		}
	}

	var repo domain.OrderRepository = relational.NewOrderRepository(store,
		relational.WithLogger(logger.WithField("storage", string(driver))),
		relational.WithMetrics(m),
		relational.WithOpTimeout(cfg.DBOpTimeout),
	)

	if cfg.OrderCacheSize > 0 {
		repo, err = cache.NewCachedOrderRepository(repo, cfg.OrderCacheSize, logger.WithField("storage", "cache"))
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("init order cache: %w", err)
		}
	}

	logger.WithFields(log.Fields{
		"driver":       driver,
		"auto_migrate": cfg.DBAutoMigrate,
		"cache_size":   cfg.OrderCacheSize,
	}).Info("relational order storage initialized")

	return &runtimeDependencies{
		repo:           repo,
		storageChecker: healthcheck.NewPingChecker("storage", store),
		closeFn:        store.Close,
	}, nil
}

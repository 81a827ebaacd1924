package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/artisan-checkout/internal/domain/order"
	"github.com/xenking/artisan-checkout/internal/storage/postgres"
	"github.com/xenking/artisan-checkout/internal/storage/sqlite"
)

// store is the opened order store with its readiness probe.
type store struct {
	orders order.Repository
	ping   func(ctx context.Context) error
	close  func()
}

func openStore(ctx context.Context, lg *zap.Logger, cfg StorageConfig) (*store, error) {
	switch cfg.Driver {
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		lg.Info("Using PostgreSQL order store")
		return &store{
			orders: postgres.NewOrderRepository(pool),
			ping:   pool.Ping,
			close:  pool.Close,
		}, nil

	case DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		lg.Info("Using SQLite order store", zap.String("path", cfg.SQLitePath))
		return &store{
			orders: sqlite.NewOrderStore(db),
			ping: func(ctx context.Context) error {
				return sqlite.Ping(ctx, db)
			},
			close: func() {
				if err := sqlite.Close(db); err != nil {
					lg.Warn("Close sqlite", zap.Error(err))
				}
			},
		}, nil

	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/RoeeEidan/Chain-Prices/internal/config"
	"github.com/RoeeEidan/Chain-Prices/internal/db"
	"github.com/RoeeEidan/Chain-Prices/internal/repository"
)

const badgerGCInterval = 10 * time.Minute

var _ repository.SeriesStore = (*Store)(nil)

// Store is an opened series store together with the backend-specific
// maintenance service, if any.
type Store struct {
	repository.SeriesStore
	// Maintenance is nil for backends that need none.
	Maintenance Service
	closeFn     func() error
}

// Close releases the store and anything opened alongside it.
func (s *Store) Close() error {
	if s.closeFn != nil {
		return s.closeFn()
	}
	return s.SeriesStore.Close()
}

// OpenStore opens and migrates the backend selected by cfg.StoreBackend.
func OpenStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	logger := log.WithFields(log.Fields{"component": "store", "backend": cfg.StoreBackend})

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		logger.Infof("connecting to %s:%d/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)
		pool, err := db.Connect(ctx, cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := db.TestConnection(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := db.Migrate(ctx, pool, cfg.TableName); err != nil {
			pool.Close()
			return nil, err
		}
		return &Store{
			SeriesStore: repository.NewPriceRepo(pool, cfg.TableName),
			closeFn: func() error {
				pool.Close()
				logger.Info("connection pool closed")
				return nil
			},
		}, nil

	case config.BackendBadger:
		repo, err := repository.OpenBadger(cfg.BadgerDir, cfg.TableName, repository.WithTTL(cfg.Retention()))
		if err != nil {
			return nil, err
		}
		st := &Store{SeriesStore: repo}
		// In-memory instances have no value log.
		if cfg.BadgerDir != "" {
			st.Maintenance = badgerGC(repo, badgerGCInterval)
		}
		return st, nil

	case config.BackendClickHouse:
		repo, err := repository.OpenClickHouse(ctx, cfg.ClickHouseDSN, cfg.TableName)
		if err != nil {
			return nil, err
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		return &Store{SeriesStore: repo}, nil

	case config.BackendMemory:
		logger.Warn("points are kept in memory and lost on exit")
		return &Store{SeriesStore: repository.NewMemoryRepo()}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// badgerGC reclaims value log space on a fixed interval until ctx is done.
func badgerGC(repo *repository.BadgerRepo, every time.Duration) Service {
	return ServiceFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				repo.RunValueLogGC()
			}
		}
	})
}

package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/redeliver/internal/core/config"
	redisclient "github.com/vietddude/redeliver/internal/infra/redis"
	"github.com/vietddude/redeliver/internal/infra/storage"
	"github.com/vietddude/redeliver/internal/infra/storage/memory"
	"github.com/vietddude/redeliver/internal/infra/storage/postgres"
)

// Stores holds the repositories picked for a configuration and the
// connections behind them.
type Stores struct {
	Failures storage.FailureRepository
	Logs     storage.LogRepository
	Backend  string

	DB    *postgres.DB
	Redis *redisclient.Client
}

// OpenStores picks storage from the configuration: PostgreSQL when a database
// URL is set, otherwise Redis for failure reports with an in-memory log, and
// memory for both when neither is configured. A Redis connection is opened
// whenever a URL is set, since consumers and the publisher share it.
func OpenStores(ctx context.Context, cfg config.AppConfig, log *slog.Logger) (*Stores, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Stores{}

	if cfg.Redis.Enabled() {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		s.Redis = client
	}

	switch {
	case cfg.Database.URL != "":
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		s.DB = db

		if err := db.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}

		s.Failures = postgres.NewFailureRepo(db)
		s.Logs = postgres.NewLogRepo(db)
		s.Backend = "postgres"
		log.Info("Using PostgreSQL storage")

	case s.Redis != nil:
		s.Failures = redisclient.NewFailureRepo(s.Redis, "redeliver", 0)
		s.Logs = memory.NewLogRepo(memory.NewMemoryStorage(0))
		s.Backend = "redis"
		log.Info("Using Redis storage for failure reports, memory for the log trail")

	default:
		store := memory.NewMemoryStorage(0)
		s.Failures = memory.NewFailureRepo(store)
		s.Logs = memory.NewLogRepo(store)
		s.Backend = "memory"
		log.Info("Using Memory storage")
	}

	return s, nil
}

// Close releases the connections.
func (s *Stores) Close() error {
	var errs []error
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close db: %w", err))
		}
	}
	return errors.Join(errs...)
}

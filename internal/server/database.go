package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/photon-decode/internal/cache"
	"github.com/joseph-ayodele/photon-decode/internal/common"
	repo "github.com/joseph-ayodele/photon-decode/internal/repository"
)

// Store is a submission repository that also reports the database clock and row count.
type Store interface {
	repo.SubmissionRepository
	Now(ctx context.Context) (time.Time, error)
	Count(ctx context.Context) (int, error)
}

// Database owns the opened store and its optional cache.
type Database struct {
	// Store is the raw store, used for health and counts.
	Store Store
	// Submissions is Store behind the configured cache, if any.
	Submissions repo.SubmissionRepository

	closers []func()
	logger  *slog.Logger
}

// ConnectDB opens the configured driver and applies the schema.
func ConnectDB(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*Database, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Database{logger: logger}

	switch cfg.Driver {
	case "postgres":
		pool, err := repo.OpenPostgres(ctx, repo.Config{
			DSN:              cfg.DSN,
			MaxConns:         cfg.MaxConns,
			MinConns:         cfg.MinConns,
			MaxConnLifetime:  cfg.MaxConnLifetime,
			MaxConnIdleTime:  cfg.MaxConnIdleTime,
			DialTimeout:      cfg.DialTimeout,
			StatementTimeout: cfg.StatementTimeout,
		}, logger)
		if err != nil {
			return nil, common.NewAppError("DB_CONNECT", "open postgres", err)
		}
		d.closers = append(d.closers, func() { repo.ClosePostgres(pool, logger) })
		pg := repo.NewPostgresSubmissions(pool, logger)
		if err := pg.Migrate(ctx); err != nil {
			d.Close()
			return nil, common.NewAppError("DB_MIGRATE", "apply postgres schema", err)
		}
		d.Store = pg
	case "sqlite":
		db, err := repo.OpenSQLite(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, common.NewAppError("DB_CONNECT", "open sqlite", err)
		}
		d.closers = append(d.closers, func() {
			if err := db.Close(); err != nil {
				logger.Error("failed to close sqlite", "error", err)
			}
		})
		d.Store = repo.NewSQLiteSubmissions(db, logger)
	default:
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown database driver %q", cfg.Driver), common.ErrInvalidInput)
	}
	d.Submissions = d.Store
	return d, nil
}

// WithCache puts the configured read-through cache in front of Submissions.
func (d *Database) WithCache(ctx context.Context, cfg common.CacheConfig) error {
	var c cache.Client
	switch cfg.Driver {
	case "", "none":
		return nil
	case "memory":
		c = cache.NewMemoryClient(cfg.MaxEntries)
	case "redis":
		rc, err := cache.NewRedisClient(ctx, cache.RedisConfig{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err != nil {
			return common.NewAppError("CACHE_CONNECT", "connect redis", err)
		}
		c = rc
	default:
		return common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown cache driver %q", cfg.Driver), common.ErrInvalidInput)
	}
	d.closers = append(d.closers, func() { _ = c.Close() })
	d.Submissions = repo.NewCachedRepository(d.Store, c, cfg.TTL, d.logger)
	d.logger.Info("submission cache enabled", "driver", cfg.Driver, "ttl", cfg.TTL)
	return nil
}

// PingDB pings the store, bounded by timeout.
func (d *Database) PingDB(ctx context.Context, timeout time.Duration) error {
	return repo.HealthCheck(ctx, d.Store, timeout, d.logger)
}

// Close releases the cache and the database, in reverse order of opening.
func (d *Database) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

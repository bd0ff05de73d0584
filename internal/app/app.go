// Package app wires configuration into the ledger's services. The api and worker binaries
// share it so both run against the same store, lock backend and id node.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/simonkvalheim/fjord-ledger/internal/bootstrap"
	"github.com/simonkvalheim/fjord-ledger/internal/config"
	"github.com/simonkvalheim/fjord-ledger/internal/idgen"
	"github.com/simonkvalheim/fjord-ledger/internal/journal"
	"github.com/simonkvalheim/fjord-ledger/internal/ledger"
	"github.com/simonkvalheim/fjord-ledger/internal/loan"
	"github.com/simonkvalheim/fjord-ledger/internal/lock"
	"github.com/simonkvalheim/fjord-ledger/internal/processor"
	"github.com/simonkvalheim/fjord-ledger/internal/repository"
)

// App holds the wired services and the connections they run on
type App struct {
	DB    *pgxpool.Pool // nil on the in-memory store
	Redis redis.UniversalClient

	Store     repository.Store
	Ledger    *ledger.Service
	Transfers *processor.TransferProcessor
	Loans     *loan.Engine

	closers []func()
}

// Options selects which connections Open must establish
type Options struct {
	// NeedRedis forces a Redis connection even when the local lock backend is used
	NeedRedis bool
	// Migrate applies pending migrations on startup
	Migrate bool
}

// Open connects to the configured backends and builds the services.
// Without DATABASE_URL the ledger runs on the in-memory store.
func Open(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, opts Options) (*App, error) {
	a := &App{}

	ids, err := idgen.NewSnowflake(cfg.NodeID)
	if err != nil {
		return nil, err
	}

	if cfg.DatabaseURL != "" {
		db, err := ConnectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
		log.Info("connected to database")

		if opts.Migrate {
			if err := bootstrap.Initialize(ctx, db, log); err != nil {
				a.Close()
				return nil, err
			}
		}
		a.Store = repository.NewPostgresStore(db, cfg.LockWaitTimeout)
	} else {
		log.Warn("DATABASE_URL not set, using the in-memory store; balances are lost on exit")
		a.Store = repository.NewMemoryStore()
	}

	if opts.NeedRedis || cfg.LockBackend == config.LockBackendRedis {
		client, err := ConnectRedis(ctx, cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = client
		a.closers = append(a.closers, func() { client.Close() })
		log.WithField("addr", cfg.RedisURL).Info("connected to redis")
	}

	var locks lock.Locker
	switch cfg.LockBackend {
	case config.LockBackendRedis:
		locks = lock.NewRedis(a.Redis, cfg.LockTTL, cfg.LockWaitTimeout, log)
	default:
		locks = lock.NewLocal(cfg.LockWaitTimeout)
	}

	poster := ledger.NewPoster(journal.New(ids, nil, log))
	a.Ledger = ledger.NewService(a.Store, locks, poster, log, cfg.StatementLimit)
	a.Transfers = processor.NewTransferProcessor(a.Store, locks, poster, log)
	a.Loans = loan.NewEngine(a.Store, locks, poster, ids, log)
	return a, nil
}

// Ping checks the connections the app holds
func (a *App) Ping(ctx context.Context) error {
	if a.DB != nil {
		if err := a.DB.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases connections in reverse order of opening
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// ConnectDB creates a connection pool to PostgreSQL
func ConnectDB(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Verify connection works
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return pool, nil
}

// ConnectRedis creates a Redis client and checks it responds
func ConnectRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}
	return client, nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/arbiter/internal/config"
	"github.com/rafaeljc/arbiter/internal/counter"
	"github.com/rafaeljc/arbiter/internal/database"
	"github.com/rafaeljc/arbiter/internal/decision"
	"github.com/rafaeljc/arbiter/internal/graphdef"
	"github.com/rafaeljc/arbiter/internal/observability"
	"github.com/rafaeljc/arbiter/internal/store"
)

// app is the composition root shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	pool     *pgxpool.Pool
	redis    *redis.Client
	checkers []observability.Checker
	closers  []func()
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// repository opens the configured audit store behind the definition cache.
func (a *app) repository(ctx context.Context) (store.Repository, error) {
	var repo store.Repository

	switch driver := a.cfg.Engine.StoreDriver; driver {
	case config.StoreDriverPostgres:
		pool, err := database.NewPostgresPool(ctx, &a.cfg.Database)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.onClose(pool.Close)
		a.checkers = append(a.checkers, database.NewHealthChecker(pool))
		repo = store.NewPostgresStore(pool)

	case config.StoreDriverSQLite:
		sqlStore, err := store.NewSQLiteStore(ctx, a.cfg.Engine.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = sqlStore.Close() })
		a.checkers = append(a.checkers, database.NewSQLHealthChecker("sqlite", sqlStore.DB()))
		repo = sqlStore

	case config.StoreDriverMemory:
		a.logger.Warn("using in-memory audit store, records are lost on exit")
		repo = store.NewMemoryStore()

	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	cached, err := store.NewDefinitionCache(repo, a.cfg.Engine.DefinitionCacheSize, a.cfg.Engine.DefinitionCacheTTL)
	if err != nil {
		return nil, err
	}
	a.onClose(cached.Close)
	return cached, nil
}

// redisClient connects once and reuses the client.
func (a *app) redisClient(ctx context.Context) (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	client, err := counter.NewRedisClient(ctx, &a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.redis = client
	a.onClose(func() { _ = client.Close() })
	a.checkers = append(a.checkers, counter.NewHealthChecker(client))
	return client, nil
}

func (a *app) counters(ctx context.Context) (counter.Store, error) {
	switch backend := a.cfg.Engine.CounterBackend; backend {
	case config.CounterBackendRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return counter.NewRedis(client, a.cfg.Engine.CounterKeyPrefix), nil
	case config.CounterBackendMemory:
		return counter.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported counter backend: %s", backend)
	}
}

func (a *app) graph(counters counter.Store) (*graphdef.Graph, error) {
	def, err := graphdef.LoadFile(a.cfg.Engine.GraphPath)
	if err != nil {
		return nil, err
	}
	return graphdef.Build(def, graphdef.WithCounters(counters), graphdef.WithLogger(a.logger))
}

// engine wires the graph, the store and the counters into a decision engine.
func (a *app) engine(ctx context.Context) (*decision.Engine, *graphdef.Graph, error) {
	counters, err := a.counters(ctx)
	if err != nil {
		return nil, nil, err
	}
	g, err := a.graph(counters)
	if err != nil {
		return nil, nil, err
	}
	repo, err := a.repository(ctx)
	if err != nil {
		return nil, nil, err
	}

	engine, err := decision.NewEngine(g.Root, repo,
		decision.WithMetrics(observability.Recorder{}),
		decision.WithLogger(a.logger),
		decision.WithResolveConcurrency(a.cfg.Engine.ResolveConcurrency),
	)
	if err != nil {
		return nil, nil, err
	}
	return engine, g, nil
}

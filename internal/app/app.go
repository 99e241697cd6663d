// Package app assembles the client: token storage, API client, query cache
// and the services built on them.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"second-brain/auth"
	"second-brain/internal/api"
	"second-brain/internal/config"
	"second-brain/internal/dashboard"
	"second-brain/internal/databases"
	"second-brain/internal/notification"
	"second-brain/internal/notify"
	"second-brain/internal/query"
	"second-brain/internal/session"
	"second-brain/internal/worker"
	"second-brain/redis"

	redisLib "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

type App struct {
	Session       *session.Controller
	Databases     *databases.Service
	Dashboard     *dashboard.Service
	Notifications *notification.Service
	Cache         *query.Cache
	Tokens        *auth.TokenStore

	pool    *worker.WorkerPool
	redis   *redisLib.Client
	closers []io.Closer
	cancel  context.CancelFunc
	log     zerolog.Logger
}

// New builds the client from cfg. An empty or unreachable RedisAddress
// leaves the query cache without a shared store; redis token storage then
// fails.
func New(ctx context.Context, cfg config.Config, nav session.Navigator, log zerolog.Logger) (*App, error) {
	a := &App{log: log}

	if cfg.RedisAddress != "" {
		a.redis = redis.InitRedis(ctx, cfg.RedisAddress, log)
	}

	storage, err := a.openStorage(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Tokens = auth.NewTokenStore(storage)

	a.pool = worker.NewWorkerPool(4, 64, log)
	opts := []query.Option{
		query.WithPool(a.pool),
		query.WithNotifier(notify.LogNotifier{Log: log}),
		query.WithLogger(log),
	}
	if a.redis != nil {
		opts = append(opts,
			query.WithSharedStore(redis.NewCache(a.redis, "second-brain:query:")),
			query.WithScope(a.Tokens.Scope),
		)
	}
	a.Cache = query.New(query.Options{
		StaleTime:  cfg.QueryStaleTime,
		GCTime:     cfg.QueryGCTime,
		Retry:      query.DefaultRetry(cfg.QueryRetries),
		RetryDelay: query.DefaultRetryDelay,
	}, opts...)

	client := api.NewClient(cfg.APIBaseURL, a.Tokens,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithAuthPrefix(cfg.AuthPrefix),
		api.WithLogger(log),
	)

	a.Session = session.New(client, a.Tokens, a.Cache, nav, session.SettingsFromConfig(cfg), log)
	a.Databases = databases.NewService(client, a.Cache, log)
	a.Dashboard = dashboard.NewService(client, a.Cache, log)
	a.Notifications = notification.NewService(client, a.Cache, log)

	gcCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.Cache.RunGC(gcCtx, max(cfg.QueryGCTime/2, time.Second))

	return a, nil
}

func (a *App) openStorage(cfg config.Config) (auth.Storage, error) {
	switch cfg.TokenStorage {
	case StorageMemory:
		return auth.NewMemoryStorage(), nil
	case StorageSQLite, "":
		s, err := auth.OpenSQLiteStorage(cfg.TokenDBPath)
		if err != nil {
			return nil, fmt.Errorf("open token storage: %w", err)
		}
		a.closers = append(a.closers, s)
		return s, nil
	case StorageRedis:
		if a.redis == nil {
			return nil, fmt.Errorf("token storage %q: redis not available at %s", cfg.TokenStorage, cfg.RedisAddress)
		}
		return redis.NewStorage(a.redis, "second-brain:auth:"), nil
	}
	return nil, fmt.Errorf("unknown token storage %q", cfg.TokenStorage)
}

// Close stops background work and releases storage.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.pool != nil {
		a.pool.Shutdown()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close storage")
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

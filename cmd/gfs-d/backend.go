package main

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rmax-ai/gfs/pkg/store"
	redisstore "github.com/rmax-ai/gfs/pkg/store/redis"
)

// openBackend builds the registry backend named by cfg.Backend.
func openBackend(ctx context.Context, cfg Config, log *zap.Logger) (store.Backend, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		b, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "local":
		b, err := store.NewLocal(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "badger":
		b, err := store.NewBadger(cfg.DataDir, log)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("%w: redis %s: %w", store.ErrBackend, cfg.RedisAddr, err)
		}
		return redisstore.NewBackend(client, cfg.RedisNamespace), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}

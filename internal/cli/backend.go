package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"trivia-quiz/internal/config"
	"trivia-quiz/internal/infra/file"
	"trivia-quiz/internal/infra/memory"
	pgstore "trivia-quiz/internal/infra/postgres"
	redisstore "trivia-quiz/internal/infra/redis"
	"trivia-quiz/internal/storage"
)

// openStore builds the configured key-value backend. The returned func
// releases its connections.
func openStore(ctx context.Context, cfg config.Config) (storage.KV, func(), error) {
	switch cfg.Storage.Backend {
	case "", "file":
		log.Printf("storage: file %s", cfg.Storage.Path)
		return file.NewStore(cfg.Storage.Path), func() {}, nil

	case "memory":
		log.Printf("storage: in-memory, progress is lost on exit")
		return memory.NewStore(), func() {}, nil

	case "redis":
		if cfg.Redis.Addr == "" {
			return nil, nil, fmt.Errorf("redis addr not configured")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		log.Printf("storage: redis %s", cfg.Redis.Addr)
		ttl := config.Duration(cfg.Redis.TTL, 24*time.Hour)
		return redisstore.NewStore(client, ttl), func() { client.Close() }, nil

	case "postgres":
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		log.Printf("storage: postgres")
		return pgstore.NewStore(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/letsssgooo/quizResults/internal/config"
	"github.com/letsssgooo/quizResults/internal/storage"
	"github.com/letsssgooo/quizResults/internal/storage/postgres"
	"github.com/letsssgooo/quizResults/internal/storage/redisstore"
)

// backend объединяет хранилище результатов и общее KV для кэша и блокировок.
type backend struct {
	repo   storage.ResultRepository
	kv     storage.KV
	locker storage.Locker
	ready  func(ctx context.Context) error
	close  func()
}

func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backend, error) {
	if cfg.Storage == config.StorageMemory {
		log.Warn("using in-memory storage, results are lost on restart and locks are not shared between instances")

		kv := storage.NewMemoryKV(nil)

		return &backend{
			repo:   storage.NewMemoryStorage(),
			kv:     kv,
			locker: kv,
			ready:  func(context.Context) error { return nil },
			close:  func() {},
		}, nil
	}

	pg, err := postgres.NewStorage(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	if err = pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}

	rdb, err := redisstore.NewStore(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		pg.Close()
		return nil, err
	}

	return &backend{
		repo:   pg,
		kv:     rdb,
		locker: rdb,
		ready: func(ctx context.Context) error {
			if err := pg.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}

			if err := rdb.Ping(ctx); err != nil {
				return fmt.Errorf("redis: %w", err)
			}

			return nil
		},
		close: func() {
			if err := rdb.Close(); err != nil {
				log.Warn("failed to close redis client", slog.Any("error", err))
			}

			pg.Close()
		},
	}, nil
}

package snapshot

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/badger"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/quote-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/quote-search/pkg/redis"
)

// OpenStore opens the blob store named by cfg.Cache.Backend.
func OpenStore(ctx context.Context, cfg *config.Config) (BlobStore, error) {
	log := logger.WithComponent("snapshot-cache").With("backend", cfg.Cache.Backend)
	switch cfg.Cache.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "none":
		return NopStore{}, nil
	case "file":
		store, err := NewFileStore(cfg.Cache.Dir)
		if err != nil {
			return nil, err
		}
		log.Info("snapshot store opened", "dir", cfg.Cache.Dir)
		return store, nil
	case "redis":
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("opening redis snapshot store: %w", err)
		}
		log.Info("snapshot store opened", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		return pkgredis.NewBlobStore(client, cfg.Redis.CacheTTL), nil
	case "badger":
		store, err := badger.Open(cfg.Badger)
		if err != nil {
			return nil, fmt.Errorf("opening badger snapshot store: %w", err)
		}
		log.Info("snapshot store opened", "dir", cfg.Badger.Dir, "in_memory", cfg.Badger.InMemory)
		return store, nil
	case "postgres":
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("opening postgres snapshot store: %w", err)
		}
		store, err := postgres.NewBlobStore(ctx, client)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("opening postgres snapshot store: %w", err)
		}
		log.Info("snapshot store opened", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q: %w", cfg.Cache.Backend, apperrors.ErrInvalidInput)
	}
}

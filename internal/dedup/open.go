package dedup

import (
	"context"
	"fmt"

	"github.com/loubnaelmalali29-code/chip/internal/config"
)

// OpenStore builds the store selected by cfg.Store. The postgres store
// expects the schema applied by Migrate.
func OpenStore(ctx context.Context, cfg config.DedupConfig) (Store, error) {
	switch cfg.Store {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	case "postgres":
		pool, err := OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(pool), nil
	default:
		return nil, fmt.Errorf("unknown dedup store: %s", cfg.Store)
	}
}

package storage

import (
	"context"
	"log/slog"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

// New opens the backend selected by cfg.Driver.
func New(ctx context.Context, cfg domain.StoreConfig, logger *slog.Logger) (ports.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case domain.StoreDriverMemory, "":
		return NewMemoryStore(logger), nil
	case domain.StoreDriverBadger:
		store, err := OpenBadgerStore(cfg.DataDir, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case domain.StoreDriverPostgres:
		store, err := OpenPostgresStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, domain.NewConfigError("store.driver", domain.ErrInvalidConfig)
	}
}

package registry

import (
	"context"
	"fmt"
	"log/slog"

	"provenance/internal/config"
	"provenance/internal/logging"
	"provenance/internal/services"
)

// Open constructs the Store selected by cfg.Registry.Backend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: registry config is required", services.ErrConfiguration)
	}
	logger = logging.NewComponentLogger(logger, "registry")

	var (
		store Store
		err   error
	)
	switch cfg.Registry.Backend {
	case config.RegistryMemory:
		store = NewMemory(opts...)
	case config.RegistrySQLite, "":
		store, err = OpenSQLite(cfg.Registry.SQLitePath, opts...)
	case config.RegistryRedis:
		store, err = OpenRedis(ctx, cfg.Registry.RedisURL, cfg.Registry.RedisPrefix, opts...)
	case config.RegistryPostgres:
		store, err = OpenPostgres(ctx, cfg.Registry.PostgresDSN, opts...)
	default:
		return nil, fmt.Errorf("%w: unsupported registry backend %q", services.ErrConfiguration, cfg.Registry.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s registry: %w", cfg.Registry.Backend, err)
	}

	attrs := []logging.Attr{logging.String("backend", store.Backend())}
	if sqlite, ok := store.(*SQLite); ok {
		attrs = append(attrs, logging.String("path", sqlite.Path()))
	}
	logger.Info("registry opened", logging.Args(attrs...)...)
	return store, nil
}

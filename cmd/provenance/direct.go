package main

import (
	"context"
	"fmt"

	"provenance/internal/api"
	"provenance/internal/blobstore"
	"provenance/internal/config"
	"provenance/internal/logging"
	"provenance/internal/oracle"
	"provenance/internal/pipeline"
	"provenance/internal/registry"
)

// openDirectRecords builds the registration pipeline in-process for commands
// run while the daemon is down.
func openDirectRecords(cfg *config.Config) (*api.RecordService, func() error, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("configuration not available")
	}
	if cfg.Registry.Backend == config.RegistryMemory {
		return nil, nil, fmt.Errorf("registry backend %q does not persist between commands; start the daemon with `provenance start`", cfg.Registry.Backend)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	store, err := registry.Open(context.Background(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	orc, err := oracle.Open(cfg.Oracle)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("open oracle: %w", err)
	}
	blobs, err := blobstore.Open(cfg.BlobStore)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("open blob store: %w", err)
	}

	svc := pipeline.New(store, orc, blobs,
		pipeline.WithLogger(logger),
		pipeline.WithOracleTimeout(cfg.OracleTimeout()),
		pipeline.WithStoreTimeout(cfg.BlobStoreTimeout()),
	)
	return api.NewRecordService(svc, cfg.BlobStore.IPFSGateway), store.Close, nil
}

package testsupport

import (
	"context"
	"testing"

	"provenance/internal/blobstore"
	"provenance/internal/config"
	"provenance/internal/oracle"
	"provenance/internal/pipeline"
	"provenance/internal/registry"
)

// MustOpenRegistry opens the registry selected by cfg and registers cleanup.
func MustOpenRegistry(t testing.TB, cfg *config.Config) registry.Store {
	t.Helper()

	store, err := registry.Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Backends bundles the adapters built from a test config.
type Backends struct {
	Store   registry.Store
	Oracle  oracle.Oracle
	Blobs   blobstore.Store
	Service *pipeline.Service
}

// MustOpenBackends builds the registry, oracle, blob store and pipeline
// service described by cfg.
func MustOpenBackends(t testing.TB, cfg *config.Config, opts ...pipeline.Option) Backends {
	t.Helper()

	store := MustOpenRegistry(t, cfg)
	orc, err := oracle.Open(cfg.Oracle)
	if err != nil {
		t.Fatalf("oracle.Open: %v", err)
	}
	blobs, err := blobstore.Open(cfg.BlobStore)
	if err != nil {
		t.Fatalf("blobstore.Open: %v", err)
	}
	return Backends{
		Store:   store,
		Oracle:  orc,
		Blobs:   blobs,
		Service: pipeline.New(store, orc, blobs, opts...),
	}
}

// MustRegister registers data for owner and fails the test on error.
func MustRegister(t testing.TB, svc *pipeline.Service, data []byte, owner string) registry.Record {
	t.Helper()

	outcome, err := svc.Register(context.Background(), data, owner)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return outcome.Record
}

package testsupport

import (
	"path/filepath"
	"testing"

	"provenance/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The oracle is the fixed backend so no test reaches a network classifier,
// and the API binds an ephemeral loopback port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Registry.SQLitePath = filepath.Join(base, "data", "registry.db")
	cfgVal.Oracle.Backend = config.OracleFixed
	cfgVal.Oracle.FixedScore = 90
	cfgVal.BlobStore.Dir = filepath.Join(base, "data", "blobs")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithRegistryBackend selects the registry backend.
func WithRegistryBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Registry.Backend = backend
	}
}

// WithFixedScore sets the score returned by the fixed oracle.
func WithFixedScore(score float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Oracle.FixedScore = score
	}
}

// WithAPIToken enables bearer authentication on the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithOracleURL switches to the HTTP oracle pointed at url.
func WithOracleURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Oracle.Backend = config.OracleHTTP
		b.cfg.Oracle.URL = url
	}
}

// WithDefaultOwner sets the owner used by /analyze uploads that name none.
func WithDefaultOwner(owner string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.DefaultOwner = owner
	}
}

// WithMaxBytes caps accepted upload size.
func WithMaxBytes(n int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.BlobStore.MaxBytes = n
	}
}

// WithoutAPI disables the HTTP listener.
func WithoutAPI() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIBind = ""
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

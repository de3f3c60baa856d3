package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"provenance/internal/api"
	"provenance/internal/blobstore"
	"provenance/internal/config"
	"provenance/internal/logging"
	"provenance/internal/metrics"
	"provenance/internal/oracle"
	"provenance/internal/pipeline"
	"provenance/internal/registry"
)

const probeTimeout = 3 * time.Second

// Dependencies are the backends the daemon serves. Store and Service are
// required; Oracle and Blobs are only probed for health.
type Dependencies struct {
	Store   registry.Store
	Service *pipeline.Service
	Oracle  oracle.Oracle
	Blobs   blobstore.Store
	Metrics *metrics.Pipeline

	// SessionID identifies this process in logs and status output.
	SessionID string
}

// Daemon coordinates the HTTP API and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     registry.Store
	records   *api.RecordService
	oracle    oracle.Oracle
	blobs     blobstore.Store
	metrics   *metrics.Pipeline
	sessionID string

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	mu        sync.Mutex
	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	doneOnce  sync.Once
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Service == nil {
		return nil, errors.New("daemon requires config, registry store, and pipeline service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     deps.Store,
		records:   api.NewRecordService(deps.Service, cfg.BlobStore.IPFSGateway),
		oracle:    deps.Oracle,
		blobs:     deps.Blobs,
		metrics:   deps.Metrics,
		sessionID: deps.SessionID,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
		done:      make(chan struct{}),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and starts the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another provenance daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}

	d.cancel = cancel
	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("provenance daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("registry_backend", d.store.Backend()))
	return nil
}

// Stop shuts down the HTTP API and releases the daemon lock. Done is closed
// after the first Stop so the process runner can exit.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if the next start fails"))
	}
	d.running.Store(false)
	d.doneOnce.Do(func() { close(d.done) })
	d.logger.Info("provenance daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Done is closed once the daemon has been stopped.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Close releases resources held by the daemon, including the registry store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Records exposes the record operations served over HTTP and IPC.
func (d *Daemon) Records() *api.RecordService {
	return d.records
}

// APIAddress returns the bound HTTP address, or "" when the API is disabled
// or not started.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status. Dependency probes run
// concurrently, each bounded by its own timeout.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:          d.running.Load(),
		PID:              os.Getpid(),
		SessionID:        d.sessionID,
		APIBind:          d.cfg.Paths.APIBind,
		LockFilePath:     d.lockPath,
		RegistryBackend:  d.store.Backend(),
		OracleBackend:    d.cfg.Oracle.Backend,
		BlobStoreBackend: d.cfg.BlobStore.Backend,
	}
	if addr := d.api.address(); addr != "" {
		status.APIBind = addr
	}
	d.mu.Lock()
	if !d.startedAt.IsZero() {
		status.StartedAt = d.startedAt.Format(time.RFC3339)
	}
	d.mu.Unlock()

	deps := make([]api.DependencyStatus, 3)
	var stats registry.Stats
	var statsErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps[0] = probe(gctx, "registry", d.store.Backend(), d.store.Ping)
		if deps[0].Available {
			statsCtx, cancel := context.WithTimeout(gctx, probeTimeout)
			defer cancel()
			stats, statsErr = d.store.Stats(statsCtx)
		}
		return nil
	})
	g.Go(func() error {
		deps[1] = probe(gctx, "oracle", d.cfg.Oracle.Backend, oracleCheck(d.oracle))
		return nil
	})
	g.Go(func() error {
		deps[2] = probe(gctx, "blobstore", d.cfg.BlobStore.Backend, blobCheck(d.blobs))
		return nil
	})
	_ = g.Wait()

	if statsErr != nil {
		d.logger.Debug("registry stats unavailable", logging.Error(statsErr))
	}
	status.Registry = api.RegistryStats{Records: stats.Records, LastSequence: stats.LastSequence}
	status.Dependencies = deps
	return status
}

type healthCheck func(context.Context) error

func oracleCheck(o oracle.Oracle) healthCheck {
	if hc, ok := o.(oracle.HealthChecker); ok {
		return hc.Check
	}
	return nil
}

func blobCheck(s blobstore.Store) healthCheck {
	if hc, ok := s.(blobstore.HealthChecker); ok {
		return hc.Check
	}
	return nil
}

func probe(ctx context.Context, name, backend string, check healthCheck) api.DependencyStatus {
	dep := api.DependencyStatus{Name: name, Backend: backend}
	if check == nil {
		dep.Available = true
		dep.Detail = "no health check"
		return dep
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	start := time.Now()
	err := check(probeCtx)
	dep.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		dep.Detail = err.Error()
		return dep
	}
	dep.Available = true
	return dep
}

// ErrNoDatabaseHealth is returned by DatabaseHealth for non-SQLite registries.
var ErrNoDatabaseHealth = errors.New("database diagnostics are only available for the sqlite registry")

// DatabaseHealth returns detailed diagnostics for the SQLite registry.
func (d *Daemon) DatabaseHealth(ctx context.Context) (registry.DatabaseHealth, error) {
	db, ok := d.store.(*registry.SQLite)
	if !ok {
		return registry.DatabaseHealth{}, ErrNoDatabaseHealth
	}
	return db.CheckHealth(ctx)
}

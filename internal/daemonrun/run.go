package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"provenance/internal/blobstore"
	"provenance/internal/config"
	"provenance/internal/daemon"
	"provenance/internal/ipc"
	"provenance/internal/logging"
	"provenance/internal/metrics"
	"provenance/internal/oracle"
	"provenance/internal/pipeline"
	"provenance/internal/registry"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the provenance daemon and blocks until SIGINT, SIGTERM, or an
// IPC stop request.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sessionID := uuid.NewString()
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("provenance-%s.log", runID))

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		SessionID:        sessionID,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update provenance.log link: %v\n", err)
	}
	if removed := logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "provenance-*.log", Exclude: []string{logPath}},
	); removed > 0 {
		logger.Info("pruned old run logs", logging.Int("removed", removed))
	}
	logDependencySnapshot(logger, cfg)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := registry.Open(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("open registry", logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the [registry] section and backend reachability"))
		return err
	}
	orc, err := oracle.Open(cfg.Oracle)
	if err != nil {
		store.Close()
		return fmt.Errorf("open oracle: %w", err)
	}
	blobs, err := blobstore.Open(cfg.BlobStore)
	if err != nil {
		store.Close()
		return fmt.Errorf("open blob store: %w", err)
	}

	m := metrics.New()
	svc := pipeline.New(store, orc, blobs,
		pipeline.WithLogger(logger),
		pipeline.WithRecorder(m),
		pipeline.WithOracleTimeout(cfg.OracleTimeout()),
		pipeline.WithStoreTimeout(cfg.BlobStoreTimeout()),
	)

	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:     store,
		Service:   svc,
		Oracle:    orc,
		Blobs:     blobs,
		Metrics:   m,
		SessionID: sessionID,
	}, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "stop the other instance or check "+cfg.LockPath()),
		)
		return err
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	select {
	case <-signalCtx.Done():
	case <-d.Done():
	}
	logger.Info("provenance daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "provenance.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("registry_backend", cfg.Registry.Backend),
		logging.String("oracle_backend", cfg.Oracle.Backend),
		logging.String("blobstore_backend", cfg.BlobStore.Backend),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_auth", strings.TrimSpace(cfg.Paths.APIToken) != ""),
		logging.Int64("max_bytes", cfg.BlobStore.MaxBytes),
	}
	switch cfg.Oracle.Backend {
	case config.OracleHTTP:
		attrs = append(attrs,
			logging.String("oracle_url", cfg.Oracle.URL),
			logging.Bool("oracle_token_present", strings.TrimSpace(cfg.Oracle.APIToken) != ""),
			logging.Float64("oracle_threshold", cfg.Oracle.Threshold))
	case config.OracleFixed:
		attrs = append(attrs, logging.Float64("oracle_fixed_score", cfg.Oracle.FixedScore))
	}
	switch cfg.BlobStore.Backend {
	case config.BlobStoreIPFS:
		attrs = append(attrs, logging.String("ipfs_api_url", cfg.BlobStore.IPFSAPIURL))
	case config.BlobStoreS3:
		attrs = append(attrs,
			logging.String("s3_endpoint", cfg.BlobStore.S3Endpoint),
			logging.String("s3_bucket", cfg.BlobStore.S3Bucket))
	case config.BlobStoreLocalFS:
		attrs = append(attrs, logging.String("blob_dir", cfg.BlobStore.Dir))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}

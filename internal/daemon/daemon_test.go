package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"provenance/internal/api"
	"provenance/internal/config"
	"provenance/internal/daemon"
	"provenance/internal/metrics"
	"provenance/internal/oracle"
	"provenance/internal/pipeline"
	"provenance/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	m := metrics.New()
	backends := testsupport.MustOpenBackends(t, cfg, pipeline.WithRecorder(m))
	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:     backends.Store,
		Service:   backends.Service,
		Oracle:    backends.Oracle,
		Blobs:     backends.Blobs,
		Metrics:   m,
		SessionID: "test-session",
	}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
	})
	return d
}

func TestNewRequiresDependencies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemon.New(cfg, daemon.Dependencies{}, nil); err == nil {
		t.Fatal("expected error without store and service")
	}
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.SessionID != "test-session" || status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected status identity: %+v", status)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("expected Done to close after Stop")
	}
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondInstanceCannotStart(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	first := newDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	second := newDaemon(t, cfg)
	err := second.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention error, got %v", err)
	}
}

func TestStatusReportsDependenciesAndStats(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	d := newDaemon(t, cfg)
	ctx := context.Background()

	if _, err := d.Records().Register(ctx, testsupport.Content(1, 32), "alice"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := d.Records().Register(ctx, testsupport.Content(2, 32), "bob"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	status := d.Status(ctx)
	if status.Registry.Records != 2 || status.Registry.LastSequence != 2 {
		t.Fatalf("unexpected registry stats: %+v", status.Registry)
	}
	if status.OracleBackend != config.OracleFixed || status.BlobStoreBackend != config.BlobStoreLocalFS {
		t.Fatalf("unexpected backends: %+v", status)
	}
	want := []string{"registry", "oracle", "blobstore"}
	if len(status.Dependencies) != len(want) {
		t.Fatalf("expected %d dependencies, got %d", len(want), len(status.Dependencies))
	}
	for i, dep := range status.Dependencies {
		if dep.Name != want[i] {
			t.Fatalf("dependency %d: expected %s, got %s", i, want[i], dep.Name)
		}
		if !dep.Available {
			t.Fatalf("dependency %s unavailable: %s", dep.Name, dep.Detail)
		}
	}
}

type scoreOnlyOracle struct{}

func (scoreOnlyOracle) Assess(context.Context, []byte) (oracle.Assessment, error) {
	return oracle.NewAssessment(75, oracle.DefaultThreshold, "score-only"), nil
}

func TestStatusWithoutOracleHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	backends := testsupport.MustOpenBackends(t, cfg)
	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:   backends.Store,
		Service: backends.Service,
		Oracle:  scoreOnlyOracle{},
		Blobs:   backends.Blobs,
		Metrics: metrics.New(),
	}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)

	status := d.Status(context.Background())
	oracleDep := status.Dependencies[1]
	if oracleDep.Name != "oracle" || !oracleDep.Available || oracleDep.Detail != "no health check" {
		t.Fatalf("unexpected oracle dependency: %+v", oracleDep)
	}
	if blobDep := status.Dependencies[2]; !blobDep.Available || blobDep.Detail == "no health check" {
		t.Fatalf("expected localfs health check to run: %+v", blobDep)
	}
}

func TestDaemonServesHTTP(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := d.APIAddress()
	if addr == "" {
		t.Fatal("expected bound API address")
	}

	resp, err := http.Post("http://"+addr+"/api/register?owner=alice", "application/octet-stream", bytes.NewReader(testsupport.Content(7, 256)))
	if err != nil {
		t.Fatalf("POST register: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var reg api.RegisterResponse
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reg.Status != "registered" || reg.Record.Owner != "alice" {
		t.Fatalf("unexpected response: %+v", reg)
	}

	metricsResp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer metricsResp.Body.Close()
	body, _ := io.ReadAll(metricsResp.Body)
	if !strings.Contains(string(body), `provenance_registrations_total{status="registered"} 1`) {
		t.Fatalf("expected registration counter in exposition:\n%s", body)
	}

	d.Stop()
	if d.APIAddress() != "" {
		t.Fatal("expected API listener to be released on Stop")
	}
}

func TestDatabaseHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	d := newDaemon(t, cfg)
	health, err := d.DatabaseHealth(context.Background())
	if err != nil {
		t.Fatalf("DatabaseHealth: %v", err)
	}
	if health.Path != cfg.Registry.SQLitePath || health.Integrity != "ok" {
		t.Fatalf("unexpected health: %+v", health)
	}

	memCfg := testsupport.NewConfig(t, testsupport.WithoutAPI(), testsupport.WithRegistryBackend(config.RegistryMemory))
	mem := newDaemon(t, memCfg)
	if _, err := mem.DatabaseHealth(context.Background()); !errors.Is(err, daemon.ErrNoDatabaseHealth) {
		t.Fatalf("expected ErrNoDatabaseHealth, got %v", err)
	}
}

package daemonrun_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"provenance/internal/daemonctl"
	"provenance/internal/daemonrun"
	"provenance/internal/testsupport"
)

func TestRunServesUntilStopped(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.Format = "json"

	done := make(chan error, 1)
	go func() {
		done <- daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: "info"})
	}()

	client, err := daemonctl.WaitForClient(cfg.SocketPath(), 5*time.Second)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping daemon run test: %v", err)
		}
		t.Fatalf("WaitForClient: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.SessionID == "" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if _, err := os.Stat(cfg.PIDPath()); err != nil {
		t.Fatalf("expected pid file: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(cfg.Paths.LogDir, "provenance.log")); err != nil {
		t.Fatalf("expected current log pointer: %v", err)
	}
	runLogs, _ := filepath.Glob(filepath.Join(cfg.Paths.LogDir, "provenance-*.log"))
	if len(runLogs) != 1 {
		t.Fatalf("expected one run-stamped log, got %v", runLogs)
	}

	if _, err := client.Register(ctx, testsupport.Content(3, 64), "alice"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	assertSingleComponentAttr(t, runLogs[0])

	if _, err := client.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	client.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after stop")
	}
	if _, err := os.Stat(cfg.PIDPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected pid file removed, got %v", err)
	}
	if _, err := os.Stat(cfg.SocketPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected socket removed, got %v", err)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := daemonrun.Run(context.Background(), nil, daemonrun.Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func assertSingleComponentAttr(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	sawPipeline := false
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if n := strings.Count(line, `"component":`); n > 1 {
			t.Fatalf("log line carries %d component attributes: %s", n, line)
		}
		if strings.Contains(line, `"component":"pipeline"`) {
			sawPipeline = true
		}
	}
	if !sawPipeline {
		t.Fatalf("expected a pipeline log line in %s", path)
	}
}

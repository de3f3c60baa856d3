package recordaccess_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"provenance/internal/api"
	"provenance/internal/daemon"
	"provenance/internal/fingerprint"
	"provenance/internal/ipc"
	"provenance/internal/recordaccess"
	"provenance/internal/registry"
	"provenance/internal/testsupport"
)

func TestOpenWithFallbackUsesDirectService(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	backends := testsupport.MustOpenBackends(t, cfg)
	closed := false

	session, err := recordaccess.OpenWithFallback(
		func() (*ipc.Client, error) { return nil, errors.New("no daemon") },
		func() (*api.RecordService, func() error, error) {
			return api.NewRecordService(backends.Service, ""), func() error { closed = true; return nil }, nil
		},
	)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	if !session.Direct {
		t.Fatal("expected direct session")
	}

	ctx := context.Background()
	content := testsupport.Content(3, 64)
	reg, err := session.Access.Register(ctx, content, "alice")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	verify, err := session.Access.Verify(ctx, content)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verify.Status != "found" || verify.Record == nil || verify.Record.Fingerprint != reg.Record.Fingerprint {
		t.Fatalf("unexpected verify result: %+v", verify)
	}

	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !closed {
		t.Fatal("expected direct close function to run")
	}
}

func TestOpenWithFallbackReportsOpenerFailure(t *testing.T) {
	_, err := recordaccess.OpenWithFallback(
		func() (*ipc.Client, error) { return nil, errors.New("no daemon") },
		func() (*api.RecordService, func() error, error) { return nil, nil, errors.New("boom") },
	)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected opener error, got %v", err)
	}

	_, err = recordaccess.OpenWithFallback(func() (*ipc.Client, error) { return nil, errors.New("no daemon") }, nil)
	if err == nil || !strings.Contains(err.Error(), "no daemon") {
		t.Fatalf("expected dial error without opener, got %v", err)
	}
}

func TestOpenWithFallbackPrefersIPC(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	backends := testsupport.MustOpenBackends(t, cfg)
	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:   backends.Store,
		Service: backends.Service,
		Oracle:  backends.Oracle,
		Blobs:   backends.Blobs,
	}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		d.Stop()
	})
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	socket := filepath.Join(cfg.Paths.LogDir, "access.sock")
	srv, err := ipc.NewServer(ctx, socket, d, nil)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() { srv.Close() })

	session, err := recordaccess.OpenWithFallback(
		func() (*ipc.Client, error) { return ipc.Dial(socket) },
		func() (*api.RecordService, func() error, error) {
			t.Fatal("direct opener must not run while the daemon answers")
			return nil, nil, nil
		},
	)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	defer session.Close()
	if session.Direct {
		t.Fatal("expected IPC session")
	}

	first, err := session.Access.Register(ctx, testsupport.Content(1, 32), "bob")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := session.Access.Register(ctx, testsupport.Content(2, 32), "bob"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	rec, err := session.Access.Lookup(ctx, first.Record.Fingerprint)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec.Owner != "bob" || rec.SequenceNumber != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	list, err := session.Access.ListByOwner(ctx, "bob", 0)
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(list.Records) != 2 || list.Records[0].SequenceNumber >= list.Records[1].SequenceNumber {
		t.Fatalf("unexpected list: %+v", list.Records)
	}

	byFP, err := session.Access.VerifyFingerprint(ctx, first.Record.Fingerprint)
	if err != nil {
		t.Fatalf("VerifyFingerprint: %v", err)
	}
	if byFP.Status != "found" {
		t.Fatalf("expected found, got %s", byFP.Status)
	}

	_, err = session.Access.Lookup(ctx, fingerprint.Compute(testsupport.Content(9, 32)).String())
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected not found over IPC, got %v", err)
	}
}

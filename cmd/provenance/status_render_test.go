package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"provenance/internal/api"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	deps := []api.DependencyStatus{
		{Name: "registry", Backend: "sqlite", Available: true, LatencyMS: 2},
		{Name: "oracle", Backend: "http", Available: false, Detail: "connection refused"},
		{Name: "blobstore", Backend: "ipfs", Available: false},
	}
	lines := dependencyLines(deps, false)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "registry (sqlite):") || !strings.Contains(lines[0], "[OK] Ready in 2ms") {
		t.Fatalf("unexpected ready line %q", lines[0])
	}
	if !strings.Contains(lines[1], "[ERROR] connection refused") {
		t.Fatalf("unexpected error line %q", lines[1])
	}
	if !strings.Contains(lines[2], "not reachable") {
		t.Fatalf("expected default detail, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "oracle, blobstore") {
		t.Fatalf("expected unavailable summary, got %q", lines[3])
	}
}

func TestVerdictLabel(t *testing.T) {
	authentic := api.Record{AuthenticityScore: 87.5, IsAuthentic: true}
	if got := verdictLabel(authentic, false); got != "87.50 (authentic)" {
		t.Fatalf("unexpected label %q", got)
	}
	fake := api.Record{AuthenticityScore: 12}
	if got := verdictLabel(fake, true); got != ansiRed+"12.00 (not authentic)"+ansiReset {
		t.Fatalf("unexpected coloured label %q", got)
	}
}

func TestShortFingerprint(t *testing.T) {
	cases := map[string]string{
		"sha256:0123456789abcdef0123": "sha256:0123456789abcdef",
		"sha256:abc":                  "sha256:abc",
		"plain":                       "plain",
	}
	for in, want := range cases {
		if got := shortFingerprint(in); got != want {
			t.Fatalf("shortFingerprint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable(fieldColumns, [][]string{{"Records"}, {"Backend", "sqlite", "extra"}})
	if !strings.Contains(out, "Records") || !strings.Contains(out, "sqlite") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	if strings.Contains(out, "extra") {
		t.Fatalf("expected surplus cells dropped:\n%s", out)
	}
	if renderTable(nil, nil) != "" {
		t.Fatal("expected empty output without columns")
	}
}

func TestEmitSwitchesBetweenJSONAndText(t *testing.T) {
	status := api.DaemonStatus{Running: false}
	render := func(out io.Writer) { fmt.Fprintln(out, "Not running") }

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	if err := emit(cmd, false, status, render); err != nil {
		t.Fatalf("emit text: %v", err)
	}
	if buf.String() != "Not running\n" {
		t.Fatalf("unexpected text output %q", buf.String())
	}

	buf.Reset()
	if err := emit(cmd, true, status, render); err != nil {
		t.Fatalf("emit json: %v", err)
	}
	var decoded api.DaemonStatus
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if strings.Contains(buf.String(), "Not running") || !strings.Contains(buf.String(), "\n  ") {
		t.Fatalf("expected indented JSON only, got %q", buf.String())
	}
}

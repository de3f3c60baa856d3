package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"provenance/internal/blobstore"
	"provenance/internal/config"
	"provenance/internal/fingerprint"
	"provenance/internal/oracle"
	"provenance/internal/pipeline"
	"provenance/internal/registry"
	"provenance/internal/services"
)

const helloCID = "bafkreibm6jg3ux5qumhcn2b3flc3tyu6dmlb4xa7u5bf44yegnrjhc4yeq"

func sampleRecord() registry.Record {
	prev := fingerprint.Compute([]byte("older"))
	return registry.Record{
		Fingerprint:    fingerprint.Compute([]byte("hello")),
		Owner:          "alice",
		StorageRef:     blobstore.Reference("ipfs://" + helloCID),
		Assessment:     oracle.NewAssessment(97.25, 50, "Hemg/Deepfake-Detection"),
		RegisteredAt:   time.Date(2026, 2, 3, 4, 5, 6, 7000, time.UTC),
		SequenceNumber: 12,
		Supersedes:     &prev,
	}
}

func TestFromRecord(t *testing.T) {
	rec := sampleRecord()
	dto := FromRecord(rec, "https://ipfs.io/")
	if dto.Fingerprint != rec.Fingerprint.String() || dto.Owner != "alice" {
		t.Fatalf("unexpected identity fields %+v", dto)
	}
	if dto.GatewayURL != "https://ipfs.io/ipfs/"+helloCID {
		t.Fatalf("unexpected gateway url %q", dto.GatewayURL)
	}
	if dto.RegisteredAt != "2026-02-03T04:05:06.000007Z" {
		t.Fatalf("unexpected timestamp %q", dto.RegisteredAt)
	}
	if dto.Supersedes != rec.Supersedes.String() || dto.SequenceNumber != 12 {
		t.Fatalf("unexpected lineage fields %+v", dto)
	}
}

func TestFromRegistrationCarriesLegacyFields(t *testing.T) {
	rec := sampleRecord()
	resp := FromRegistration(pipeline.RegistrationOutcome{Status: pipeline.StatusRegistered, Record: rec}, "")
	if resp.ContentHash != rec.Fingerprint.Hex() {
		t.Fatalf("contentHash should be the hex digest, got %q", resp.ContentHash)
	}
	if resp.IPFSHash != helloCID {
		t.Fatalf("unexpected ipfsHash %q", resp.IPFSHash)
	}
	if resp.TransactionHash != "seq:12" {
		t.Fatalf("unexpected transactionHash %q", resp.TransactionHash)
	}
	if !resp.IsAuthentic || resp.AuthenticityScore != 97.25 || resp.Status != "registered" {
		t.Fatalf("unexpected verdict fields %+v", resp)
	}
	if resp.Record.GatewayURL != "" {
		t.Fatalf("no gateway configured, got %q", resp.Record.GatewayURL)
	}

	rec.StorageRef = blobstore.Reference("s3://bucket/" + helloCID)
	dup := FromRegistration(pipeline.RegistrationOutcome{Status: pipeline.StatusAlreadyRegistered, Record: rec}, "")
	if dup.IPFSHash != "" {
		t.Fatalf("s3 references have no ipfsHash, got %q", dup.IPFSHash)
	}
	if dup.Status != "alreadyRegistered" {
		t.Fatalf("unexpected status %q", dup.Status)
	}
}

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", registry.ErrNotFound, http.StatusNotFound},
		{"validation", pipelineFailure(t, nil, pipeline.ErrEmptyContent), http.StatusBadRequest},
		{"unsupported", pipelineFailure(t, oracle.ErrUnsupportedFormat, nil), http.StatusUnprocessableEntity},
		{"rejected", pipelineFailure(t, nil, blobstore.ErrRejected), http.StatusUnprocessableEntity},
		{"oracle down", pipelineFailure(t, oracle.ErrUnavailable, nil), http.StatusServiceUnavailable},
		{"store down", pipelineFailure(t, nil, blobstore.ErrUnavailable), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
		{"raw registry outage", fmt.Errorf("%w: dial tcp: refused", registry.ErrUnavailable), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StatusCode(tc.err); got != tc.want {
				t.Fatalf("StatusCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestAdapterErrorsCarryServiceMarkers(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{registry.ErrNotFound, "not_found"},
		{registry.ErrUnavailable, "unavailable"},
		{oracle.ErrUnavailable, "unavailable"},
		{oracle.ErrTimeout, "timeout"},
		{blobstore.ErrUnavailable, "unavailable"},
	}
	for _, tc := range cases {
		if got := services.ErrorKind(tc.err); got != tc.kind {
			t.Fatalf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.kind)
		}
	}
	if _, err := oracle.Open(config.Oracle{Backend: "psychic"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := blobstore.Open(config.BlobStore{Backend: "ftp"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestFromErrorIncludesKind(t *testing.T) {
	err := pipelineFailure(t, oracle.ErrTimeout, nil)
	status, body := FromError(err)
	if status != http.StatusServiceUnavailable || body.Kind != "oracle_timeout" || !body.Retryable || body.Stage != "assess" {
		t.Fatalf("unexpected error mapping %d %+v", status, body)
	}
}

type stubOracle struct{ err error }

func (s stubOracle) Assess(context.Context, []byte) (oracle.Assessment, error) {
	return oracle.NewAssessment(80, 50, "stub"), s.err
}

type stubBlobs struct{ err error }

func (s stubBlobs) Put(context.Context, []byte) (blobstore.Reference, error) {
	return "ipfs://" + helloCID, s.err
}

// pipelineFailure produces a real pipeline failure by running Register with
// failing adapters. A nil oracleErr and storeErr equal to ErrEmptyContent
// triggers validation instead.
func pipelineFailure(t *testing.T, oracleErr, storeErr error) error {
	t.Helper()
	svc := pipeline.New(registry.NewMemory(), stubOracle{err: oracleErr}, stubBlobs{err: storeErr})
	data := []byte("payload")
	if errors.Is(storeErr, pipeline.ErrEmptyContent) {
		data = nil
	}
	_, err := svc.Register(context.Background(), data, "alice")
	if err == nil {
		t.Fatalf("expected failure for oracle=%v store=%v", oracleErr, storeErr)
	}
	return err
}

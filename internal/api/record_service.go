package api

import (
	"context"
	"iter"
	"strings"

	"provenance/internal/fingerprint"
	"provenance/internal/pipeline"
	"provenance/internal/registry"
	"provenance/internal/services"
)

// Pipeline is the subset of pipeline.Service the transports need.
type Pipeline interface {
	Register(ctx context.Context, data []byte, owner string) (pipeline.RegistrationOutcome, error)
	Verify(ctx context.Context, data []byte) (pipeline.VerificationResult, error)
	VerifyFingerprint(ctx context.Context, fp fingerprint.Fingerprint) (pipeline.VerificationResult, error)
	Lookup(ctx context.Context, fp fingerprint.Fingerprint) (registry.Record, error)
	GetByOwner(ctx context.Context, owner string) iter.Seq2[registry.Record, error]
}

// RecordService exposes pipeline operations returning API DTOs. HTTP, IPC and
// the CLI's direct mode all go through it.
type RecordService struct {
	pipeline Pipeline
	gateway  string
}

// NewRecordService wraps p. gateway is the IPFS gateway base for record URLs.
func NewRecordService(p Pipeline, gateway string) *RecordService {
	if p == nil {
		return nil
	}
	return &RecordService{pipeline: p, gateway: strings.TrimSpace(gateway)}
}

// Register runs the registration pipeline.
func (s *RecordService) Register(ctx context.Context, data []byte, owner string) (RegisterResponse, error) {
	outcome, err := s.pipeline.Register(ctx, data, owner)
	if err != nil {
		return RegisterResponse{}, err
	}
	return FromRegistration(outcome, s.gateway), nil
}

// Verify checks content bytes against the registry.
func (s *RecordService) Verify(ctx context.Context, data []byte) (VerifyResponse, error) {
	result, err := s.pipeline.Verify(ctx, data)
	if err != nil {
		return VerifyResponse{}, err
	}
	return FromVerification(result, s.gateway), nil
}

// VerifyFingerprint checks a client-computed fingerprint against the registry.
func (s *RecordService) VerifyFingerprint(ctx context.Context, value string) (VerifyResponse, error) {
	fp, err := parseFingerprint(value)
	if err != nil {
		return VerifyResponse{}, err
	}
	result, err := s.pipeline.VerifyFingerprint(ctx, fp)
	if err != nil {
		return VerifyResponse{}, err
	}
	return FromVerification(result, s.gateway), nil
}

// Lookup fetches one record; a missing record returns registry.ErrNotFound.
func (s *RecordService) Lookup(ctx context.Context, value string) (Record, error) {
	fp, err := parseFingerprint(value)
	if err != nil {
		return Record{}, err
	}
	rec, err := s.pipeline.Lookup(ctx, fp)
	if err != nil {
		return Record{}, err
	}
	return FromRecord(rec, s.gateway), nil
}

// ListByOwner collects up to limit records for owner in sequence order. A
// limit of zero or less returns every record.
func (s *RecordService) ListByOwner(ctx context.Context, owner string, limit int) (RecordListResponse, error) {
	owner = strings.TrimSpace(owner)
	resp := RecordListResponse{Owner: owner, Records: []Record{}}
	for rec, err := range s.pipeline.GetByOwner(ctx, owner) {
		if err != nil {
			return RecordListResponse{}, err
		}
		resp.Records = append(resp.Records, FromRecord(rec, s.gateway))
		if limit > 0 && len(resp.Records) >= limit {
			break
		}
	}
	return resp, nil
}

func parseFingerprint(value string) (fingerprint.Fingerprint, error) {
	fp, err := fingerprint.Parse(value)
	if err != nil {
		return fingerprint.Fingerprint{}, services.Wrap(services.ErrValidation, "api", "parse fingerprint", "", err)
	}
	return fp, nil
}

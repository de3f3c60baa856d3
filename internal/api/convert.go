package api

import (
	"errors"
	"fmt"
	"net/http"

	"provenance/internal/pipeline"
	"provenance/internal/registry"
	"provenance/internal/services"
)

// FromRecord converts a registry record to its API representation. gateway
// is the IPFS HTTP gateway base used to build a retrieval URL.
func FromRecord(rec registry.Record, gateway string) Record {
	dto := Record{
		Fingerprint:       rec.Fingerprint.String(),
		Owner:             rec.Owner,
		StorageReference:  rec.StorageRef.String(),
		GatewayURL:        rec.StorageRef.GatewayURL(gateway),
		AuthenticityScore: rec.Assessment.Score,
		IsAuthentic:       rec.Assessment.IsAuthentic,
		Model:             rec.Assessment.Model,
		SequenceNumber:    rec.SequenceNumber,
	}
	if !rec.RegisteredAt.IsZero() {
		dto.RegisteredAt = rec.RegisteredAt.UTC().Format(dateTimeFormat)
	}
	if rec.Supersedes != nil {
		dto.Supersedes = rec.Supersedes.String()
	}
	return dto
}

// FromRecords converts records in order.
func FromRecords(records []registry.Record, gateway string) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, FromRecord(rec, gateway))
	}
	return out
}

// FromRegistration converts a pipeline registration outcome.
func FromRegistration(outcome pipeline.RegistrationOutcome, gateway string) RegisterResponse {
	rec := outcome.Record
	resp := RegisterResponse{
		Status:            string(outcome.Status),
		Record:            FromRecord(rec, gateway),
		ContentHash:       rec.Fingerprint.Hex(),
		AuthenticityScore: rec.Assessment.Score,
		IsAuthentic:       rec.Assessment.IsAuthentic,
		TransactionHash:   fmt.Sprintf("seq:%d", rec.SequenceNumber),
	}
	if rec.StorageRef.Scheme() == "ipfs" {
		if id, err := rec.StorageRef.CID(); err == nil {
			resp.IPFSHash = id.String()
		}
	}
	switch outcome.Status {
	case pipeline.StatusRegistered:
		resp.Message = "Content analyzed and registered successfully"
	case pipeline.StatusAlreadyRegistered:
		resp.Message = fmt.Sprintf("Content already registered by %s", rec.Owner)
	}
	return resp
}

// FromVerification converts a pipeline verification result.
func FromVerification(result pipeline.VerificationResult, gateway string) VerifyResponse {
	resp := VerifyResponse{
		Status:      string(result.Status),
		Fingerprint: result.Fingerprint.String(),
	}
	if result.Record != nil {
		rec := FromRecord(*result.Record, gateway)
		resp.Record = &rec
	}
	return resp
}

// FromError builds the error body and HTTP status for err.
func FromError(err error) (int, ErrorResponse) {
	resp := ErrorResponse{
		Error:     err.Error(),
		Kind:      services.ErrorKind(err),
		Retryable: services.IsRetryable(err),
	}
	if failure, ok := pipeline.AsFailure(err); ok {
		resp.Stage = string(failure.Stage)
	}
	status := StatusCode(err)
	if status == http.StatusNotFound {
		resp.Kind = "not_found"
	}
	return status, resp
}

// StatusCode maps an error to the HTTP status clients see.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrUnsupportedFormat), errors.Is(err, pipeline.ErrStoreRejected):
		return http.StatusUnprocessableEntity
	}
	switch services.ErrorKind(err) {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	}
	if services.IsRetryable(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

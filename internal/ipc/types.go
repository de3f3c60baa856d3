package ipc

import (
	"net/http"

	"provenance/internal/api"
	"provenance/internal/pipeline"
	"provenance/internal/registry"
	"provenance/internal/services"
)

// StopRequest asks the daemon to shut down.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse mirrors the HTTP status payload.
type StatusResponse = api.DaemonStatus

// DependencyStatus describes availability of an external dependency.
type DependencyStatus = api.DependencyStatus

// Record mirrors the HTTP API record DTO.
type Record = api.Record

// RegisterRequest submits content for registration.
type RegisterRequest struct {
	Owner   string `json:"owner"`
	Content []byte `json:"content"`
}

// RegisterResponse carries the registration outcome or a failure.
type RegisterResponse struct {
	Result  api.RegisterResponse `json:"result"`
	Failure *RemoteError         `json:"failure,omitempty"`
}

// VerifyRequest checks content, or a client-computed fingerprint when
// Fingerprint is set.
type VerifyRequest struct {
	Content     []byte `json:"content,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// VerifyResponse carries the verification result or a failure.
type VerifyResponse struct {
	Result  api.VerifyResponse `json:"result"`
	Failure *RemoteError       `json:"failure,omitempty"`
}

// LookupRequest fetches one record by fingerprint.
type LookupRequest struct {
	Fingerprint string `json:"fingerprint"`
}

// LookupResponse carries the record or a failure.
type LookupResponse struct {
	Record  Record       `json:"record"`
	Failure *RemoteError `json:"failure,omitempty"`
}

// ListByOwnerRequest lists an owner's records. Limit <= 0 returns all.
type ListByOwnerRequest struct {
	Owner string `json:"owner"`
	Limit int    `json:"limit"`
}

// ListByOwnerResponse carries the ordered records or a failure.
type ListByOwnerResponse struct {
	Result  api.RecordListResponse `json:"result"`
	Failure *RemoteError           `json:"failure,omitempty"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports registry database health information.
type DatabaseHealthResponse struct {
	Path          string `json:"path"`
	SchemaVersion int    `json:"schema_version"`
	Integrity     string `json:"integrity"`
	Records       uint64 `json:"records"`
	Error         string `json:"error"`
}

// RemoteError is a classified failure reported by the daemon. It satisfies
// the services classifier interfaces, and errors.Is matches the pipeline or
// services marker its Kind names as well as registry.ErrNotFound.
type RemoteError struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Kind      string `json:"kind,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Retryable bool   `json:"retryable"`
}

func newRemoteError(err error) *RemoteError {
	if err == nil {
		return nil
	}
	status, payload := api.FromError(err)
	return &RemoteError{
		Status:    status,
		Message:   payload.Error,
		Kind:      payload.Kind,
		Stage:     payload.Stage,
		Retryable: payload.Retryable,
	}
}

func (e *RemoteError) Error() string { return e.Message }

// ErrorKind implements services.ErrorClassifier.
func (e *RemoteError) ErrorKind() string { return e.Kind }

// IsRetryable implements services.RetryClassifier.
func (e *RemoteError) IsRetryable() bool { return e.Retryable }

var kindMarkers = map[string]error{
	string(pipeline.KindValidation):          services.ErrValidation,
	string(pipeline.KindOracleUnavailable):   pipeline.ErrOracleUnavailable,
	string(pipeline.KindOracleTimeout):       pipeline.ErrOracleTimeout,
	string(pipeline.KindUnsupportedFormat):   pipeline.ErrUnsupportedFormat,
	string(pipeline.KindStoreUnavailable):    pipeline.ErrStoreUnavailable,
	string(pipeline.KindStoreRejected):       pipeline.ErrStoreRejected,
	string(pipeline.KindRegistryUnavailable): pipeline.ErrRegistryUnavailable,
	string(pipeline.KindCancelled):           pipeline.ErrCancelled,
	"not_found":                              services.ErrNotFound,
	"unavailable":                            services.ErrUnavailable,
	"timeout":                                services.ErrTimeout,
	"configuration":                          services.ErrConfiguration,
}

// Is matches the sentinels callers branch on.
func (e *RemoteError) Is(target error) bool {
	if target == registry.ErrNotFound {
		return e.Status == http.StatusNotFound
	}
	marker, ok := kindMarkers[e.Kind]
	return ok && target == marker
}

// errOrNil avoids returning a typed nil through the error interface.
func errOrNil(e *RemoteError) error {
	if e == nil {
		return nil
	}
	return e
}

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"provenance/internal/blobstore"
	"provenance/internal/oracle"
	"provenance/internal/registry"
	"provenance/internal/services"
)

// Failure markers. errors.Is matches both these and the adapter sentinel a
// Failure wraps.
var (
	ErrOracleUnavailable   = errors.New("oracle unavailable")
	ErrOracleTimeout       = errors.New("oracle timed out")
	ErrUnsupportedFormat   = errors.New("content format not supported")
	ErrStoreUnavailable    = errors.New("blob store unavailable")
	ErrStoreRejected       = errors.New("blob store rejected content")
	ErrRegistryUnavailable = errors.New("registry unavailable")
	ErrEmptyContent        = errors.New("content is empty")
	ErrInvalidOwner        = errors.New("owner is required")
	ErrCancelled           = errors.New("request cancelled")
)

// Kind classifies a failure for transports and metrics.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindOracleUnavailable   Kind = "oracle_unavailable"
	KindOracleTimeout       Kind = "oracle_timeout"
	KindUnsupportedFormat   Kind = "unsupported_format"
	KindStoreUnavailable    Kind = "store_unavailable"
	KindStoreRejected       Kind = "store_rejected"
	KindRegistryUnavailable Kind = "registry_unavailable"
	KindCancelled           Kind = "cancelled"
)

// Stage names the pipeline step that failed.
type Stage string

const (
	StageValidate    Stage = "validate"
	StageFingerprint Stage = "fingerprint"
	StageLookup      Stage = "lookup"
	StageAssess      Stage = "assess"
	StageStore       Stage = "store"
	StageWrite       Stage = "write"
)

// Failure is the error returned by Service operations.
type Failure struct {
	Kind      Kind
	Stage     Stage
	Retryable bool
	marker    error
	Err       error
}

func (f *Failure) Error() string {
	if f.Err == nil || errors.Is(f.marker, f.Err) {
		return fmt.Sprintf("%s: %s", f.Stage, f.marker)
	}
	return fmt.Sprintf("%s: %s: %v", f.Stage, f.marker, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func (f *Failure) Is(target error) bool { return target == f.marker }

// ErrorKind implements services.ErrorClassifier.
func (f *Failure) ErrorKind() string { return string(f.Kind) }

// IsRetryable implements services.RetryClassifier.
func (f *Failure) IsRetryable() bool { return f.Retryable }

func newFailure(kind Kind, stage Stage, err error) *Failure {
	f := &Failure{Kind: kind, Stage: stage, Err: err}
	switch kind {
	case KindValidation:
		switch {
		case errors.Is(err, ErrEmptyContent):
			f.marker = ErrEmptyContent
		case errors.Is(err, ErrInvalidOwner):
			f.marker = ErrInvalidOwner
		default:
			f.marker = services.ErrValidation
		}
	case KindOracleUnavailable:
		f.marker, f.Retryable = ErrOracleUnavailable, true
	case KindOracleTimeout:
		f.marker, f.Retryable = ErrOracleTimeout, true
	case KindUnsupportedFormat:
		f.marker = ErrUnsupportedFormat
	case KindStoreUnavailable:
		f.marker, f.Retryable = ErrStoreUnavailable, true
	case KindStoreRejected:
		f.marker = ErrStoreRejected
	case KindRegistryUnavailable:
		f.marker, f.Retryable = ErrRegistryUnavailable, true
	case KindCancelled:
		f.marker, f.Retryable = ErrCancelled, true
	}
	return f
}

// AsFailure extracts the pipeline failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func classifyOracleError(err error) Kind {
	switch {
	case errors.Is(err, oracle.ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, oracle.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindOracleTimeout
	default:
		return KindOracleUnavailable
	}
}

func classifyStoreError(err error) Kind {
	if errors.Is(err, blobstore.ErrRejected) {
		return KindStoreRejected
	}
	return KindStoreUnavailable
}

func classifyRegistryError(err error) Kind {
	if errors.Is(err, registry.ErrInvalidEntry) {
		return KindValidation
	}
	return KindRegistryUnavailable
}

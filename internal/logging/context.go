package logging

import (
	"context"
	"log/slog"

	"provenance/internal/services"
)

// Standard field keys shared by every component.
const (
	FieldComponent      = "component"
	FieldSessionID      = "session_id"
	FieldCorrelationID  = "correlation_id"
	FieldOwner          = "owner"
	FieldFingerprint    = "fingerprint"
	FieldSupersedes     = "supersedes"
	FieldSequenceNumber = "sequence_number"
	FieldStage          = "stage"
	FieldTransport      = "transport"
	FieldEventType      = "event_type"
	FieldErrorHint      = "error_hint"
	FieldErrorKind      = "error_kind"
	FieldImpact         = "impact"
)

// ContextFields extracts request-scoped attributes stored by the services package.
func ContextFields(ctx context.Context) []Attr {
	if ctx == nil {
		return nil
	}
	var attrs []Attr
	if id, ok := services.RequestIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldCorrelationID, id))
	}
	if owner, ok := services.OwnerFromContext(ctx); ok {
		attrs = append(attrs, String(FieldOwner, owner))
	}
	if fp, ok := services.FingerprintFromContext(ctx); ok {
		attrs = append(attrs, String(FieldFingerprint, fp))
	}
	if transport, ok := services.TransportFromContext(ctx); ok {
		attrs = append(attrs, String(FieldTransport, transport))
	}
	return attrs
}

// WithContext returns a logger decorated with request-scoped attributes from ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	attrs := ContextFields(ctx)
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(Args(attrs...)...)
}

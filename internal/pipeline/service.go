package pipeline

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"time"

	"provenance/internal/blobstore"
	"provenance/internal/fingerprint"
	"provenance/internal/logging"
	"provenance/internal/oracle"
	"provenance/internal/registry"
	"provenance/internal/services"
)

const (
	defaultOracleTimeout = 30 * time.Second
	defaultStoreTimeout  = 60 * time.Second
)

// Status is the outcome reported to callers.
type Status string

const (
	StatusRegistered        Status = "registered"
	StatusAlreadyRegistered Status = "alreadyRegistered"
	StatusFound             Status = "found"
	StatusNotFound          Status = "notFound"
)

// RegistrationOutcome is the result of a successful Register call. Both
// statuses carry the record now bound to the fingerprint.
type RegistrationOutcome struct {
	Status Status
	Record registry.Record
}

// VerificationResult reports whether content matches a registered record.
// Record is nil when Status is StatusNotFound.
type VerificationResult struct {
	Status      Status
	Fingerprint fingerprint.Fingerprint
	Record      *registry.Record
}

// Recorder receives pipeline measurements. metrics.Pipeline implements it.
type Recorder interface {
	RecordRegistration(status string, elapsed time.Duration)
	RecordVerification(status string, elapsed time.Duration)
	RecordFailure(operation, stage, kind string)
	RecordAdapterCall(adapter string, elapsed time.Duration, err error)
}

type noopRecorder struct{}

func (noopRecorder) RecordRegistration(string, time.Duration) {}
func (noopRecorder) RecordVerification(string, time.Duration) {}
func (noopRecorder) RecordFailure(string, string, string) {}
func (noopRecorder) RecordAdapterCall(string, time.Duration, error) {}

// Service runs registration and verification against injected adapters.
type Service struct {
	registry      registry.Registry
	oracle        oracle.Oracle
	blobs         blobstore.Store
	logger        *slog.Logger
	recorder      Recorder
	oracleTimeout time.Duration
	storeTimeout  time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithOracleTimeout bounds each oracle call.
func WithOracleTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.oracleTimeout = d
		}
	}
}

// WithStoreTimeout bounds each blob store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// New constructs a Service.
func New(reg registry.Registry, orc oracle.Oracle, blobs blobstore.Store, opts ...Option) *Service {
	s := &Service{
		registry:      reg,
		oracle:        orc,
		blobs:         blobs,
		logger:        logging.NewNop(),
		recorder:      noopRecorder{},
		oracleTimeout: defaultOracleTimeout,
		storeTimeout:  defaultStoreTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = logging.NewComponentLogger(s.logger, "pipeline")
	return s
}

// Register binds content to an owner, or reports the record that already
// holds its fingerprint.
func (s *Service) Register(ctx context.Context, data []byte, owner string) (RegistrationOutcome, error) {
	start := time.Now()
	owner = strings.TrimSpace(owner)
	switch {
	case len(data) == 0:
		return RegistrationOutcome{}, s.fail(ctx, "register", newFailure(KindValidation, StageValidate, ErrEmptyContent))
	case owner == "":
		return RegistrationOutcome{}, s.fail(ctx, "register", newFailure(KindValidation, StageValidate, ErrInvalidOwner))
	}

	fp := fingerprint.Compute(data)
	ctx = services.WithOwner(ctx, owner)
	ctx = services.WithFingerprint(ctx, fp.String())
	logger := logging.WithContext(ctx, s.logger)

	existing, err := s.registry.Lookup(ctx, fp)
	switch {
	case err == nil:
		logger.Info("content already registered",
			logging.String(logging.FieldEventType, "register_short_circuit"),
			logging.Sequence(existing.SequenceNumber),
		)
		s.recorder.RecordRegistration(string(StatusAlreadyRegistered), time.Since(start))
		return RegistrationOutcome{Status: StatusAlreadyRegistered, Record: existing}, nil
	case !errors.Is(err, registry.ErrNotFound):
		return RegistrationOutcome{}, s.fail(ctx, "register", registryFailure(ctx, StageLookup, err))
	}

	assessment, err := s.assess(ctx, data)
	if err != nil {
		return RegistrationOutcome{}, s.fail(ctx, "register", err)
	}

	ref, err := s.put(ctx, data)
	if err != nil {
		return RegistrationOutcome{}, s.fail(ctx, "register", err)
	}

	if err := ctx.Err(); err != nil {
		return RegistrationOutcome{}, s.fail(ctx, "register", newFailure(KindCancelled, StageWrite, err))
	}

	rec, err := s.registry.Write(ctx, registry.Entry{
		Fingerprint: fp,
		Owner:       owner,
		StorageRef:  ref,
		Assessment:  assessment,
	})
	if winner, ok := registry.ExistingRecord(err); ok {
		logger.Info("registration race lost; returning winning record",
			logging.String(logging.FieldEventType, "register_race_lost"),
			logging.Sequence(winner.SequenceNumber),
			logging.String("winning_owner", winner.Owner),
		)
		s.recorder.RecordRegistration(string(StatusAlreadyRegistered), time.Since(start))
		return RegistrationOutcome{Status: StatusAlreadyRegistered, Record: winner}, nil
	}
	if err != nil {
		return RegistrationOutcome{}, s.fail(ctx, "register", registryFailure(ctx, StageWrite, err))
	}

	logger.Info("content registered",
		logging.String(logging.FieldEventType, "register_committed"),
		logging.Sequence(rec.SequenceNumber),
		logging.Float64("authenticity_score", rec.Assessment.Score),
		logging.Bool("is_authentic", rec.Assessment.IsAuthentic),
		logging.String("storage_reference", rec.StorageRef.String()),
		logging.Duration("elapsed", time.Since(start)),
	)
	s.recorder.RecordRegistration(string(StatusRegistered), time.Since(start))
	return RegistrationOutcome{Status: StatusRegistered, Record: rec}, nil
}

func (s *Service) assess(ctx context.Context, data []byte) (oracle.Assessment, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.oracleTimeout)
	defer cancel()

	start := time.Now()
	assessment, err := s.oracle.Assess(callCtx, data)
	s.recorder.RecordAdapterCall("oracle", time.Since(start), err)
	if err == nil {
		return assessment, nil
	}
	if ctx.Err() != nil {
		return oracle.Assessment{}, newFailure(KindCancelled, StageAssess, ctx.Err())
	}
	return oracle.Assessment{}, newFailure(classifyOracleError(err), StageAssess, err)
}

func (s *Service) put(ctx context.Context, data []byte) (blobstore.Reference, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	start := time.Now()
	ref, err := s.blobs.Put(callCtx, data)
	s.recorder.RecordAdapterCall("blobstore", time.Since(start), err)
	if err == nil {
		return ref, nil
	}
	if ctx.Err() != nil {
		return "", newFailure(KindCancelled, StageStore, ctx.Err())
	}
	return "", newFailure(classifyStoreError(err), StageStore, err)
}

// Verify reports whether data matches a registered record. It has no side
// effects and never calls the oracle or blob store.
func (s *Service) Verify(ctx context.Context, data []byte) (VerificationResult, error) {
	return s.VerifyFingerprint(ctx, fingerprint.Compute(data))
}

// VerifyFingerprint is Verify for callers that hashed the content themselves.
func (s *Service) VerifyFingerprint(ctx context.Context, fp fingerprint.Fingerprint) (VerificationResult, error) {
	start := time.Now()
	ctx = services.WithFingerprint(ctx, fp.String())

	rec, err := s.registry.Lookup(ctx, fp)
	switch {
	case err == nil:
		s.recorder.RecordVerification(string(StatusFound), time.Since(start))
		logging.WithContext(ctx, s.logger).Debug("verification matched",
			logging.Sequence(rec.SequenceNumber))
		return VerificationResult{Status: StatusFound, Fingerprint: fp, Record: &rec}, nil
	case errors.Is(err, registry.ErrNotFound):
		s.recorder.RecordVerification(string(StatusNotFound), time.Since(start))
		logging.WithContext(ctx, s.logger).Debug("verification found no record")
		return VerificationResult{Status: StatusNotFound, Fingerprint: fp}, nil
	default:
		return VerificationResult{}, s.fail(ctx, "verify", registryFailure(ctx, StageLookup, err))
	}
}

// Lookup returns the record for fp or registry.ErrNotFound.
func (s *Service) Lookup(ctx context.Context, fp fingerprint.Fingerprint) (registry.Record, error) {
	rec, err := s.registry.Lookup(ctx, fp)
	if err == nil || errors.Is(err, registry.ErrNotFound) {
		return rec, err
	}
	ctx = services.WithFingerprint(ctx, fp.String())
	return registry.Record{}, s.fail(ctx, "lookup", registryFailure(ctx, StageLookup, err))
}

// GetByOwner yields the owner's records in registration order.
func (s *Service) GetByOwner(ctx context.Context, owner string) iter.Seq2[registry.Record, error] {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		err := newFailure(KindValidation, StageValidate, ErrInvalidOwner)
		return func(yield func(registry.Record, error) bool) {
			yield(registry.Record{}, err)
		}
	}
	ctx = services.WithOwner(ctx, owner)
	return func(yield func(registry.Record, error) bool) {
		for rec, err := range s.registry.ListByOwner(ctx, owner) {
			if err != nil {
				yield(registry.Record{}, s.fail(ctx, "list", registryFailure(ctx, StageLookup, err)))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// registryFailure classifies a registry error, reporting caller cancellation
// ahead of whatever the backend made of the dead context.
func registryFailure(ctx context.Context, stage Stage, err error) *Failure {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return newFailure(KindCancelled, stage, ctxErr)
	}
	return newFailure(classifyRegistryError(err), stage, err)
}

func (s *Service) fail(ctx context.Context, operation string, err error) error {
	failure, ok := AsFailure(err)
	if !ok {
		return err
	}
	s.recorder.RecordFailure(operation, string(failure.Stage), string(failure.Kind))

	attrs := []logging.Attr{
		logging.String(logging.FieldStage, string(failure.Stage)),
		logging.String(logging.FieldErrorKind, string(failure.Kind)),
		logging.Bool("retryable", failure.Retryable),
		logging.Error(failure),
		logging.String(logging.FieldErrorHint, hintFor(failure.Kind)),
	}
	logger := logging.WithContext(ctx, s.logger)
	if failure.Kind == KindValidation {
		logger.Debug(operation+" rejected", logging.Args(attrs...)...)
		return failure
	}
	attrs = append(attrs, logging.String(logging.FieldImpact, "no record was written"))
	logging.WarnWithContext(logger, operation+" failed", operation+"_failed", attrs...)
	return failure
}

func hintFor(kind Kind) string {
	switch kind {
	case KindOracleUnavailable:
		return "check oracle.url and that the model endpoint is loaded"
	case KindOracleTimeout:
		return "retry later or raise oracle.timeout_seconds"
	case KindUnsupportedFormat:
		return "submit a supported image format"
	case KindStoreUnavailable:
		return "check blob store connectivity"
	case KindStoreRejected:
		return "content exceeds blobstore.max_bytes or the backend refused it"
	case KindRegistryUnavailable:
		return "check registry backend health with 'provenance status'"
	case KindCancelled:
		return "request was cancelled by the caller"
	default:
		return "check request parameters"
	}
}

package registry

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"provenance/internal/blobstore"
	"provenance/internal/fingerprint"
	"provenance/internal/oracle"
	"provenance/internal/services"
)

var (
	// ErrAlreadyRegistered reports that the fingerprint already has a record.
	ErrAlreadyRegistered = errors.New("fingerprint already registered")
	// ErrNotFound reports that no record exists for the fingerprint.
	ErrNotFound = fmt.Errorf("record %w", services.ErrNotFound)
	// ErrUnavailable reports that the backing store could not be reached or failed.
	ErrUnavailable = fmt.Errorf("registry %w", services.ErrUnavailable)
	// ErrInvalidEntry reports an entry missing required fields.
	ErrInvalidEntry = errors.New("invalid registry entry")
)

// Entry is the caller-supplied part of a record. The store assigns the
// sequence number and timestamp.
type Entry struct {
	Fingerprint fingerprint.Fingerprint
	Owner       string
	StorageRef  blobstore.Reference
	Assessment  oracle.Assessment
	Supersedes  *fingerprint.Fingerprint
}

// Validate checks the fields every backend requires.
func (e Entry) Validate() error {
	switch {
	case e.Fingerprint.IsZero():
		return fmt.Errorf("%w: fingerprint is required", ErrInvalidEntry)
	case strings.TrimSpace(e.Owner) == "":
		return fmt.Errorf("%w: owner is required", ErrInvalidEntry)
	case e.StorageRef == "":
		return fmt.Errorf("%w: storage reference is required", ErrInvalidEntry)
	case e.Supersedes != nil && e.Supersedes.Equal(e.Fingerprint):
		return fmt.Errorf("%w: record cannot supersede itself", ErrInvalidEntry)
	}
	return nil
}

// Record is a committed registry entry.
type Record struct {
	Fingerprint    fingerprint.Fingerprint
	Owner          string
	StorageRef     blobstore.Reference
	Assessment     oracle.Assessment
	RegisteredAt   time.Time
	SequenceNumber uint64
	Supersedes     *fingerprint.Fingerprint
}

func newRecord(entry Entry, seq uint64, at time.Time) Record {
	rec := Record{
		Fingerprint:    entry.Fingerprint,
		Owner:          entry.Owner,
		StorageRef:     entry.StorageRef,
		Assessment:     entry.Assessment,
		RegisteredAt:   at,
		SequenceNumber: seq,
	}
	if entry.Supersedes != nil {
		prev := *entry.Supersedes
		rec.Supersedes = &prev
	}
	return rec
}

// AlreadyRegisteredError carries the record that won the write.
type AlreadyRegisteredError struct {
	Record Record
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("%s: %s (sequence %d)", ErrAlreadyRegistered, e.Record.Fingerprint, e.Record.SequenceNumber)
}

func (e *AlreadyRegisteredError) Is(target error) bool {
	return target == ErrAlreadyRegistered
}

// ExistingRecord returns the winning record when err reports a duplicate write.
func ExistingRecord(err error) (Record, bool) {
	var dup *AlreadyRegisteredError
	if errors.As(err, &dup) {
		return dup.Record, true
	}
	return Record{}, false
}

// Registry is the append-only record log.
type Registry interface {
	// Write atomically inserts the entry unless its fingerprint is already present.
	Write(ctx context.Context, entry Entry) (Record, error)
	Lookup(ctx context.Context, fp fingerprint.Fingerprint) (Record, error)
	// ListByOwner yields the owner's records in ascending sequence order.
	ListByOwner(ctx context.Context, owner string) iter.Seq2[Record, error]
}

// Stats summarises store contents for status reporting.
type Stats struct {
	Records      uint64
	LastSequence uint64
}

// Store is a Registry with lifecycle and diagnostics.
type Store interface {
	Registry
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
	Close() error
	Backend() string
}

type unavailableError struct {
	op  string
	err error
}

func (e *unavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrUnavailable, e.op, e.err)
}

func (e *unavailableError) Unwrap() []error {
	return []error{ErrUnavailable, e.err}
}

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &unavailableError{op: op, err: err}
}

// timestampPrecision is the resolution every backend can round-trip.
const timestampPrecision = time.Microsecond

// nextTimestamp returns now truncated to store precision, clamped so it never
// precedes the last committed timestamp.
func nextTimestamp(now func() time.Time, last time.Time) time.Time {
	ts := now().UTC().Truncate(timestampPrecision)
	if ts.Before(last) {
		return last
	}
	return ts
}

// Option configures a backend.
type Option func(*options)

type options struct {
	now      func() time.Time
	pageSize int
}

// WithClock overrides the time source used for RegisteredAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithPageSize sets how many records ListByOwner fetches per round trip.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, pageSize: 100}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func errorSeq(err error) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		yield(Record{}, err)
	}
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

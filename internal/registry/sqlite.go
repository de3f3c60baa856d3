package registry

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"provenance/internal/blobstore"
	"provenance/internal/fingerprint"
	"provenance/internal/oracle"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	sqliteUniqueCode        = 2067
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	// Fixed width keeps registered_at sortable as text.
	sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

	recordColumns = "sequence_number, fingerprint, owner, storage_ref, authenticity_score, is_authentic, model, registered_at, supersedes"
)

// SQLite is the default Store, backed by a single database file.
type SQLite struct {
	db       *sql.DB
	path     string
	now      func() time.Time
	pageSize int
	// writeMu serializes writers inside this process; the immediate
	// transaction lock covers other processes sharing the file.
	writeMu sync.Mutex
}

// DatabaseHealth describes the state of the SQLite file.
type DatabaseHealth struct {
	Path          string
	SchemaVersion int
	Integrity     string
	Records       uint64
}

// OpenSQLite opens or creates the registry database at path.
func OpenSQLite(path string, opts ...Option) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create registry directory: %w", err)
		}
	}

	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	o := buildOptions(opts)
	store := &SQLite{db: db, path: path, now: o.now, pageSize: o.pageSize}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLite) Backend() string { return "sqlite" }

// Path returns the database file location.
func (s *SQLite) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *SQLite) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (s *SQLite) Write(ctx context.Context, entry Entry) (Record, error) {
	if err := entry.Validate(); err != nil {
		return Record{}, err
	}
	ctx = ensureContext(ctx)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var rec Record
	err := retryOnBusy(ctx, func() error {
		var insertErr error
		rec, insertErr = s.insert(ctx, entry)
		return insertErr
	})
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, ErrAlreadyRegistered):
		return Record{}, err
	case isSQLiteUnique(err):
		existing, lookupErr := s.Lookup(ctx, entry.Fingerprint)
		if lookupErr != nil {
			return Record{}, lookupErr
		}
		return Record{}, &AlreadyRegisteredError{Record: existing}
	default:
		return Record{}, unavailable("write", err)
	}
}

func (s *SQLite) insert(ctx context.Context, entry Entry) (Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanSQLiteRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE fingerprint = ?`, entry.Fingerprint.String()))
	if err == nil {
		return Record{}, &AlreadyRegisteredError{Record: existing}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Record{}, err
	}

	var last time.Time
	var lastRaw string
	err = tx.QueryRowContext(ctx, `SELECT registered_at FROM records ORDER BY sequence_number DESC LIMIT 1`).Scan(&lastRaw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Record{}, err
	default:
		if last, err = time.Parse(sqliteTimeLayout, lastRaw); err != nil {
			return Record{}, fmt.Errorf("parse last registered_at: %w", err)
		}
	}
	at := nextTimestamp(s.now, last)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO records (
            fingerprint, owner, storage_ref, authenticity_score, is_authentic, model, registered_at, supersedes
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Fingerprint.String(),
		entry.Owner,
		entry.StorageRef.String(),
		entry.Assessment.Score,
		boolToInt(entry.Assessment.IsAuthentic),
		entry.Assessment.Model,
		at.Format(sqliteTimeLayout),
		nullableFingerprint(entry.Supersedes),
	)
	if err != nil {
		return Record{}, err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, err
	}
	return newRecord(entry, uint64(seq), at), nil
}

func (s *SQLite) Lookup(ctx context.Context, fp fingerprint.Fingerprint) (Record, error) {
	ctx = ensureContext(ctx)
	rec, err := scanSQLiteRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE fingerprint = ?`, fp.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, unavailable("lookup", err)
	}
	return rec, nil
}

func (s *SQLite) ListByOwner(ctx context.Context, owner string) iter.Seq2[Record, error] {
	ctx = ensureContext(ctx)
	return func(yield func(Record, error) bool) {
		var after int64
		for {
			page, err := s.ownerPage(ctx, owner, after)
			if err != nil {
				yield(Record{}, unavailable("list by owner", err))
				return
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
				after = int64(rec.SequenceNumber)
			}
			if len(page) < s.pageSize {
				return
			}
		}
	}
}

func (s *SQLite) ownerPage(ctx context.Context, owner string, after int64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE owner = ? AND sequence_number > ? ORDER BY sequence_number LIMIT ?`,
		owner, after, s.pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var page []Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		page = append(page, rec)
	}
	return page, rows.Err()
}

func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	var count, last int64
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1), COALESCE(MAX(sequence_number), 0) FROM records`).Scan(&count, &last)
	if err != nil {
		return Stats{}, unavailable("stats", err)
	}
	return Stats{Records: uint64(count), LastSequence: uint64(last)}, nil
}

// Ping verifies the database answers and passes a quick integrity check.
func (s *SQLite) Ping(ctx context.Context) error {
	health, err := s.CheckHealth(ctx)
	if err != nil {
		return err
	}
	if health.Integrity != "ok" {
		return unavailable("integrity check", errors.New(health.Integrity))
	}
	return nil
}

// CheckHealth returns diagnostic information about the registry database.
func (s *SQLite) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	ctx = ensureContext(ctx)
	health := DatabaseHealth{Path: s.path}
	if err := s.db.PingContext(ctx); err != nil {
		return health, unavailable("ping", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		return health, unavailable("read schema version", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&health.Integrity); err != nil {
		return health, unavailable("quick check", err)
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		return health, err
	}
	health.Records = stats.Records
	return health, nil
}

func scanSQLiteRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		seq        int64
		fpRaw      string
		owner      string
		ref        string
		score      float64
		authentic  int64
		model      string
		atRaw      string
		supersedes sql.NullString
	)
	if err := scanner.Scan(&seq, &fpRaw, &owner, &ref, &score, &authentic, &model, &atRaw, &supersedes); err != nil {
		return Record{}, err
	}
	at, err := time.Parse(sqliteTimeLayout, atRaw)
	if err != nil {
		return Record{}, fmt.Errorf("parse registered_at: %w", err)
	}
	return decodeRecord(uint64(seq), fpRaw, owner, ref, score, authentic != 0, model, at, supersedes.String)
}

// decodeRecord rebuilds a Record from stored column values shared by the SQL backends.
func decodeRecord(seq uint64, fpRaw, owner, ref string, score float64, authentic bool, model string, at time.Time, supersedes string) (Record, error) {
	fp, err := fingerprint.Parse(fpRaw)
	if err != nil {
		return Record{}, fmt.Errorf("stored fingerprint: %w", err)
	}
	rec := Record{
		Fingerprint:    fp,
		Owner:          owner,
		StorageRef:     blobstore.Reference(ref),
		Assessment:     oracle.Assessment{Score: score, IsAuthentic: authentic, Model: model},
		RegisteredAt:   at.UTC(),
		SequenceNumber: seq,
	}
	if supersedes != "" {
		prev, err := fingerprint.Parse(supersedes)
		if err != nil {
			return Record{}, fmt.Errorf("stored supersedes: %w", err)
		}
		rec.Supersedes = &prev
	}
	return rec, nil
}

func nullableFingerprint(fp *fingerprint.Fingerprint) any {
	if fp == nil {
		return nil
	}
	return fp.String()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isSQLiteUnique(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteUniqueCode {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

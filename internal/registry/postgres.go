package registry

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"provenance/internal/fingerprint"
)

//go:embed postgres_schema.sql
var postgresSchemaSQL string

const (
	pgUniqueViolation = "23505"
	pgRecordColumns   = "sequence_number, fingerprint, owner, storage_ref, authenticity_score, is_authentic, model, registered_at, supersedes"
)

// writeLockKey identifies the advisory lock that serializes writers.
const writeLockKey int64 = 0x70726f76

// Postgres is a Store backed by a PostgreSQL database.
type Postgres struct {
	pool     *pgxpool.Pool
	now      func() time.Time
	pageSize int
}

// OpenPostgres connects with dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*Postgres, error) {
	ctx = ensureContext(ctx)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("postgres ping", err)
	}
	if _, err := pool.Exec(ctx, postgresSchemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	o := buildOptions(opts)
	return &Postgres{pool: pool, now: o.now, pageSize: o.pageSize}, nil
}

func (p *Postgres) Backend() string { return "postgres" }

func (p *Postgres) Write(ctx context.Context, entry Entry) (Record, error) {
	if err := entry.Validate(); err != nil {
		return Record{}, err
	}
	ctx = ensureContext(ctx)

	rec, err := p.insert(ctx, entry)
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, ErrAlreadyRegistered):
		return Record{}, err
	case isUniqueViolation(err):
		existing, lookupErr := p.Lookup(ctx, entry.Fingerprint)
		if lookupErr != nil {
			return Record{}, lookupErr
		}
		return Record{}, &AlreadyRegisteredError{Record: existing}
	default:
		return Record{}, unavailable("write", err)
	}
}

func (p *Postgres) insert(ctx context.Context, entry Entry) (Record, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return Record{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", writeLockKey); err != nil {
		return Record{}, err
	}

	existing, err := scanPostgresRecord(tx.QueryRow(ctx,
		`SELECT `+pgRecordColumns+` FROM provenance_records WHERE fingerprint = $1`, entry.Fingerprint.String()))
	if err == nil {
		return Record{}, &AlreadyRegisteredError{Record: existing}
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, err
	}

	var (
		lastSeq int64
		lastAt  time.Time
	)
	err = tx.QueryRow(ctx,
		`SELECT sequence_number, registered_at FROM provenance_records ORDER BY sequence_number DESC LIMIT 1`,
	).Scan(&lastSeq, &lastAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, err
	}
	at := nextTimestamp(p.now, lastAt.UTC())
	seq := uint64(lastSeq) + 1

	var supersedes *string
	if entry.Supersedes != nil {
		value := entry.Supersedes.String()
		supersedes = &value
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO provenance_records (`+pgRecordColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		int64(seq),
		entry.Fingerprint.String(),
		entry.Owner,
		entry.StorageRef.String(),
		entry.Assessment.Score,
		entry.Assessment.IsAuthentic,
		entry.Assessment.Model,
		at,
		supersedes,
	); err != nil {
		return Record{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Record{}, err
	}
	return newRecord(entry, seq, at), nil
}

func (p *Postgres) Lookup(ctx context.Context, fp fingerprint.Fingerprint) (Record, error) {
	rec, err := scanPostgresRecord(p.pool.QueryRow(ensureContext(ctx),
		`SELECT `+pgRecordColumns+` FROM provenance_records WHERE fingerprint = $1`, fp.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, unavailable("lookup", err)
	}
	return rec, nil
}

func (p *Postgres) ListByOwner(ctx context.Context, owner string) iter.Seq2[Record, error] {
	ctx = ensureContext(ctx)
	return func(yield func(Record, error) bool) {
		var after int64
		for {
			rows, err := p.pool.Query(ctx,
				`SELECT `+pgRecordColumns+` FROM provenance_records
                 WHERE owner = $1 AND sequence_number > $2
                 ORDER BY sequence_number LIMIT $3`,
				owner, after, p.pageSize)
			if err != nil {
				yield(Record{}, unavailable("list by owner", err))
				return
			}
			page, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
				return scanPostgresRecord(row)
			})
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
			if len(page) < p.pageSize {
				return
			}
		}
	}
}

func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	var count, last int64
	err := p.pool.QueryRow(ensureContext(ctx),
		`SELECT COUNT(1), COALESCE(MAX(sequence_number), 0) FROM provenance_records`,
	).Scan(&count, &last)
	if err != nil {
		return Stats{}, unavailable("stats", err)
	}
	return Stats{Records: uint64(count), LastSequence: uint64(last)}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return unavailable("ping", p.pool.Ping(ensureContext(ctx)))
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func scanPostgresRecord(row pgx.Row) (Record, error) {
	var (
		seq        int64
		fpRaw      string
		owner      string
		ref        string
		score      float64
		authentic  bool
		model      string
		at         time.Time
		supersedes *string
	)
	if err := row.Scan(&seq, &fpRaw, &owner, &ref, &score, &authentic, &model, &at, &supersedes); err != nil {
		return Record{}, err
	}
	prev := ""
	if supersedes != nil {
		prev = *supersedes
	}
	return decodeRecord(uint64(seq), fpRaw, owner, ref, score, authentic, model, at, prev)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

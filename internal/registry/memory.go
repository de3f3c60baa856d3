package registry

import (
	"context"
	"iter"
	"sync"
	"time"

	"provenance/internal/fingerprint"
)

// Memory is an in-process Store. Contents are lost when the process exits.
type Memory struct {
	mu      sync.RWMutex
	log     []Record
	byKey   map[string]int
	byOwner map[string][]int
	now     func() time.Time
}

// NewMemory constructs an empty in-memory registry.
func NewMemory(opts ...Option) *Memory {
	o := buildOptions(opts)
	return &Memory{
		byKey:   make(map[string]int),
		byOwner: make(map[string][]int),
		now:     o.now,
	}
}

func (m *Memory) Backend() string { return "memory" }

func (m *Memory) Write(ctx context.Context, entry Entry) (Record, error) {
	if err := entry.Validate(); err != nil {
		return Record{}, err
	}
	if err := ensureContext(ctx).Err(); err != nil {
		return Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := entry.Fingerprint.String()
	if idx, ok := m.byKey[key]; ok {
		return Record{}, &AlreadyRegisteredError{Record: m.log[idx]}
	}

	var last time.Time
	if n := len(m.log); n > 0 {
		last = m.log[n-1].RegisteredAt
	}
	rec := newRecord(entry, uint64(len(m.log)+1), nextTimestamp(m.now, last))
	m.log = append(m.log, rec)
	idx := len(m.log) - 1
	m.byKey[key] = idx
	m.byOwner[rec.Owner] = append(m.byOwner[rec.Owner], idx)
	return rec, nil
}

func (m *Memory) Lookup(ctx context.Context, fp fingerprint.Fingerprint) (Record, error) {
	if err := ensureContext(ctx).Err(); err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.byKey[fp.String()]
	if !ok {
		return Record{}, ErrNotFound
	}
	return m.log[idx], nil
}

func (m *Memory) ListByOwner(ctx context.Context, owner string) iter.Seq2[Record, error] {
	ctx = ensureContext(ctx)
	m.mu.RLock()
	indexes := m.byOwner[owner]
	snapshot := make([]Record, len(indexes))
	for i, idx := range indexes {
		snapshot[i] = m.log[idx]
	}
	m.mu.RUnlock()

	return func(yield func(Record, error) bool) {
		for _, rec := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(Record{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (m *Memory) Stats(context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := uint64(len(m.log))
	return Stats{Records: n, LastSequence: n}, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

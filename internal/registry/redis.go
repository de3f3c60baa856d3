package registry

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"provenance/internal/fingerprint"
)

// writeScript performs the whole check-and-insert. Redis runs scripts one at a
// time, so no other writer can interleave between the existence check and the
// owner index update.
//
// KEYS: record hash, sequence counter, last timestamp, owner zset.
// ARGV: fingerprint, owner, storage_ref, score, is_authentic, model,
// registered_at (20-digit unix nanos), supersedes.
var writeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return {0}
end
local ts = ARGV[7]
local last = redis.call('GET', KEYS[3])
if last and last > ts then
  ts = last
end
local seq = redis.call('INCR', KEYS[2])
redis.call('HSET', KEYS[1],
  'fingerprint', ARGV[1],
  'owner', ARGV[2],
  'storage_ref', ARGV[3],
  'score', ARGV[4],
  'is_authentic', ARGV[5],
  'model', ARGV[6],
  'registered_at', ts,
  'sequence_number', seq,
  'supersedes', ARGV[8])
redis.call('SET', KEYS[3], ts)
redis.call('ZADD', KEYS[4], seq, ARGV[1])
return {1, seq, ts}
`)

// Redis is a Store backed by a Redis server.
type Redis struct {
	client   *redis.Client
	base     string
	now      func() time.Time
	pageSize int
}

// OpenRedis connects to the server at url and verifies it answers.
func OpenRedis(ctx context.Context, url, prefix string, opts ...Option) (*Redis, error) {
	parsed, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(parsed)
	if err := client.Ping(ensureContext(ctx)).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable("redis ping", err)
	}
	return NewRedis(client, prefix, opts...), nil
}

// NewRedis wraps an existing client. Keys share one hash tag so every key a
// write touches lands in the same cluster slot.
func NewRedis(client *redis.Client, prefix string, opts ...Option) *Redis {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "provenance"
	}
	o := buildOptions(opts)
	return &Redis{
		client:   client,
		base:     "{" + prefix + "}:",
		now:      o.now,
		pageSize: o.pageSize,
	}
}

func (r *Redis) Backend() string { return "redis" }

func (r *Redis) recordKey(fp fingerprint.Fingerprint) string { return r.base + "rec:" + fp.String() }

func (r *Redis) ownerKey(owner string) string { return r.base + "owner:" + owner }

func (r *Redis) seqKey() string { return r.base + "seq" }

func (r *Redis) lastKey() string { return r.base + "last" }

func (r *Redis) Write(ctx context.Context, entry Entry) (Record, error) {
	if err := entry.Validate(); err != nil {
		return Record{}, err
	}
	ctx = ensureContext(ctx)

	at := nextTimestamp(r.now, time.Time{})
	supersedes := ""
	if entry.Supersedes != nil {
		supersedes = entry.Supersedes.String()
	}
	keys := []string{r.recordKey(entry.Fingerprint), r.seqKey(), r.lastKey(), r.ownerKey(entry.Owner)}
	result, err := writeScript.Run(ctx, r.client, keys,
		entry.Fingerprint.String(),
		entry.Owner,
		entry.StorageRef.String(),
		strconv.FormatFloat(entry.Assessment.Score, 'g', -1, 64),
		redisBool(entry.Assessment.IsAuthentic),
		entry.Assessment.Model,
		formatRedisTime(at),
		supersedes,
	).Slice()
	if err != nil {
		return Record{}, unavailable("write", err)
	}
	if len(result) == 0 {
		return Record{}, unavailable("write", errors.New("empty script result"))
	}

	if inserted, _ := result[0].(int64); inserted == 0 {
		existing, err := r.Lookup(ctx, entry.Fingerprint)
		if err != nil {
			return Record{}, err
		}
		return Record{}, &AlreadyRegisteredError{Record: existing}
	}
	if len(result) < 3 {
		return Record{}, unavailable("write", fmt.Errorf("unexpected script result %v", result))
	}
	seq, _ := result[1].(int64)
	tsRaw, _ := result[2].(string)
	committedAt, err := parseRedisTime(tsRaw)
	if err != nil {
		return Record{}, unavailable("write", err)
	}
	return newRecord(entry, uint64(seq), committedAt), nil
}

func (r *Redis) Lookup(ctx context.Context, fp fingerprint.Fingerprint) (Record, error) {
	fields, err := r.client.HGetAll(ensureContext(ctx), r.recordKey(fp)).Result()
	if err != nil {
		return Record{}, unavailable("lookup", err)
	}
	if len(fields) == 0 {
		return Record{}, ErrNotFound
	}
	rec, err := decodeRedisRecord(fields)
	if err != nil {
		return Record{}, unavailable("lookup", err)
	}
	return rec, nil
}

func (r *Redis) ListByOwner(ctx context.Context, owner string) iter.Seq2[Record, error] {
	ctx = ensureContext(ctx)
	key := r.ownerKey(owner)
	return func(yield func(Record, error) bool) {
		// Sequence numbers only grow, so new members append past the cursor.
		var start int64
		for {
			members, err := r.client.ZRange(ctx, key, start, start+int64(r.pageSize)-1).Result()
			if err != nil {
				yield(Record{}, unavailable("list by owner", err))
				return
			}
			if len(members) == 0 {
				return
			}

			cmds, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, member := range members {
					pipe.HGetAll(ctx, r.base+"rec:"+member)
				}
				return nil
			})
			if err != nil {
				yield(Record{}, unavailable("list by owner", err))
				return
			}
			for _, cmd := range cmds {
				fields, err := cmd.(*redis.MapStringStringCmd).Result()
				if err == nil && len(fields) == 0 {
					err = fmt.Errorf("owner index references missing record")
				}
				var rec Record
				if err == nil {
					rec, err = decodeRedisRecord(fields)
				}
				if err != nil {
					yield(Record{}, unavailable("list by owner", err))
					return
				}
				if !yield(rec, nil) {
					return
				}
			}
			if len(members) < r.pageSize {
				return
			}
			start += int64(len(members))
		}
	}
}

func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	seq, err := r.client.Get(ensureContext(ctx), r.seqKey()).Uint64()
	if errors.Is(err, redis.Nil) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, unavailable("stats", err)
	}
	return Stats{Records: seq, LastSequence: seq}, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return unavailable("ping", r.client.Ping(ensureContext(ctx)).Err())
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func decodeRedisRecord(fields map[string]string) (Record, error) {
	seq, err := strconv.ParseUint(fields["sequence_number"], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("stored sequence_number: %w", err)
	}
	score, err := strconv.ParseFloat(fields["score"], 64)
	if err != nil {
		return Record{}, fmt.Errorf("stored score: %w", err)
	}
	at, err := parseRedisTime(fields["registered_at"])
	if err != nil {
		return Record{}, err
	}
	return decodeRecord(seq, fields["fingerprint"], fields["owner"], fields["storage_ref"],
		score, fields["is_authentic"] == "1", fields["model"], at, fields["supersedes"])
}

func formatRedisTime(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}

func parseRedisTime(raw string) (time.Time, error) {
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored registered_at: %w", err)
	}
	return time.Unix(0, nanos).UTC(), nil
}

func redisBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

package registry_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"provenance/internal/registry"
)

// These suites need live servers and skip unless the env vars are set.

func TestRedisContract(t *testing.T) {
	url := os.Getenv("PROVENANCE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PROVENANCE_TEST_REDIS_URL not set")
	}
	runContract(t, func(t *testing.T, opts ...registry.Option) registry.Store {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			t.Fatalf("parse redis url: %v", err)
		}
		client := redis.NewClient(parsed)
		prefix := "provenance-test-" + uuid.NewString()
		t.Cleanup(func() {
			ctx := context.Background()
			iter := client.Scan(ctx, 0, "{"+prefix+"}:*", 100).Iterator()
			for iter.Next(ctx) {
				client.Del(ctx, iter.Val())
			}
			_ = client.Close()
		})
		return registry.NewRedis(client, prefix, opts...)
	})
}

func TestPostgresContract(t *testing.T) {
	dsn := os.Getenv("PROVENANCE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PROVENANCE_TEST_POSTGRES_DSN not set")
	}
	truncate := func(t *testing.T) {
		pool, err := pgxpool.New(context.Background(), dsn)
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		defer pool.Close()
		if _, err := pool.Exec(context.Background(), "TRUNCATE provenance_records"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
	}
	runContract(t, func(t *testing.T, opts ...registry.Option) registry.Store {
		store, err := registry.OpenPostgres(context.Background(), dsn, opts...)
		if err != nil {
			t.Fatalf("open postgres: %v", err)
		}
		truncate(t)
		t.Cleanup(func() {
			truncate(t)
			_ = store.Close()
		})
		return store
	})
}

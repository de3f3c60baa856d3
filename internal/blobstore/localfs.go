package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"
)

// LocalFS stores content immutably under root, keyed by CID.
type LocalFS struct {
	root     string
	maxBytes int64
}

// NewLocalFS constructs a filesystem store rooted at root, creating it if needed.
func NewLocalFS(root string, maxBytes int64) (*LocalFS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("localfs: create root: %w", err)
	}
	return &LocalFS{root: root, maxBytes: maxBytes}, nil
}

// Put writes data once. Writing bytes that already exist is a no-op.
func (s *LocalFS) Put(ctx context.Context, data []byte) (Reference, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := checkSize(data, s.maxBytes); err != nil {
		return "", err
	}
	id, err := ContentID(data)
	if err != nil {
		return "", err
	}
	path := s.pathFor(id)
	ref := Reference("file://" + filepath.ToSlash(path))

	if existing, err := os.ReadFile(path); err == nil {
		if !bytes.Equal(existing, data) {
			return "", fmt.Errorf("%w: stored object %s does not match its content id", ErrRejected, id)
		}
		return ref, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%w: create shard: %w", ErrUnavailable, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp: %w", ErrUnavailable, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return "", fmt.Errorf("%w: write object: %w", ErrUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("%w: sync object: %w", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: close object: %w", ErrUnavailable, err)
	}
	if err := os.Chmod(tmpPath, 0o444); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: chmod object: %w", ErrUnavailable, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: commit object: %w", ErrUnavailable, err)
	}
	return ref, nil
}

// Get reads the object stored under id and verifies its content address.
func (s *LocalFS) Get(id cid.Cid) ([]byte, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		return nil, err
	}
	got, err := ContentID(data)
	if err != nil {
		return nil, err
	}
	if !got.Equals(id) {
		return nil, fmt.Errorf("localfs: object %s failed content verification", id)
	}
	return data, nil
}

// Check implements HealthChecker.
func (s *LocalFS) Check(context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrUnavailable, s.root)
	}
	return nil
}

// CIDv1 base32 strings share a fixed prefix, so shard on the tail.
func (s *LocalFS) pathFor(id cid.Cid) string {
	key := id.String()
	if len(key) < 2 {
		return filepath.Join(s.root, key)
	}
	return filepath.Join(s.root, key[len(key)-2:], key)
}

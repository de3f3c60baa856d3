package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"provenance/internal/services"
)

var (
	// ErrUnavailable reports that the backing store could not be reached.
	ErrUnavailable = fmt.Errorf("blob store %w", services.ErrUnavailable)
	// ErrRejected reports a quota, size or policy refusal.
	ErrRejected = errors.New("blob store rejected content")
)

// Store persists content and returns a retrieval reference.
type Store interface {
	Put(ctx context.Context, data []byte) (Reference, error)
}

// HealthChecker is implemented by stores that can report reachability.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// Reference is an opaque, scheme-qualified pointer to stored content such as
// "ipfs://<cid>", "s3://bucket/key" or "file:///root/xx/<cid>".
type Reference string

// String implements fmt.Stringer.
func (r Reference) String() string { return string(r) }

// Scheme returns the resolution scheme ("ipfs", "s3", "file").
func (r Reference) Scheme() string {
	scheme, _, ok := strings.Cut(string(r), "://")
	if !ok {
		return ""
	}
	return scheme
}

// CID extracts the content identifier embedded in the reference's final path segment.
func (r Reference) CID() (cid.Cid, error) {
	_, rest, ok := strings.Cut(string(r), "://")
	if !ok {
		return cid.Undef, fmt.Errorf("reference %q has no scheme", r)
	}
	last := rest
	if idx := strings.LastIndex(rest, "/"); idx >= 0 {
		last = rest[idx+1:]
	}
	return cid.Decode(last)
}

// GatewayURL returns a public HTTP URL for IPFS references, or "" for other schemes.
func (r Reference) GatewayURL(gateway string) string {
	if r.Scheme() != "ipfs" {
		return ""
	}
	id, err := r.CID()
	if err != nil {
		return ""
	}
	gateway = strings.TrimRight(strings.TrimSpace(gateway), "/")
	if gateway == "" {
		return ""
	}
	return gateway + "/ipfs/" + id.String()
}

// ContentID returns the CIDv1 (raw + sha2-256) of data.
func ContentID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("hash content: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

func checkSize(data []byte, maxBytes int64) error {
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return fmt.Errorf("%w: content is %d bytes, limit is %d", ErrRejected, len(data), maxBytes)
	}
	return nil
}

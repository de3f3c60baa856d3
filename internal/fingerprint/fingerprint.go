package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Algorithm names the digest used to produce a fingerprint.
type Algorithm string

// SHA256 is the v1 fingerprint algorithm.
const SHA256 Algorithm = "sha256"

// Current is the algorithm used for new fingerprints.
const Current = SHA256

var digestSizes = map[Algorithm]int{
	SHA256: sha256.Size,
}

var (
	// ErrInvalid reports a fingerprint string that cannot be decoded.
	ErrInvalid = errors.New("invalid fingerprint")
	// ErrUnknownAlgorithm reports an algorithm tag this build does not know.
	ErrUnknownAlgorithm = errors.New("unknown fingerprint algorithm")
)

// Fingerprint is an algorithm-tagged content digest.
type Fingerprint struct {
	Algorithm Algorithm
	Digest    []byte
}

// Compute returns the fingerprint of data. Empty input is valid and yields
// the digest of the empty sequence.
func Compute(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint{Algorithm: Current, Digest: sum[:]}
}

// ComputeReader fingerprints everything read from r.
func ComputeReader(r io.Reader) (Fingerprint, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return Fingerprint{}, fmt.Errorf("read content: %w", err)
	}
	return Fingerprint{Algorithm: Current, Digest: h.Sum(nil)}, nil
}

// Parse decodes "<algorithm>:<hex>". A bare hex digest of sha256 length is
// accepted and tagged as SHA256.
func Parse(value string) (Fingerprint, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return Fingerprint{}, fmt.Errorf("%w: empty value", ErrInvalid)
	}
	algo := SHA256
	digestHex := trimmed
	if name, rest, ok := strings.Cut(trimmed, ":"); ok {
		algo = Algorithm(name)
		digestHex = rest
	}
	size, ok := digestSizes[algo]
	if !ok {
		return Fingerprint{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
	digest, err := hex.DecodeString(digestHex)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(digest) != size {
		return Fingerprint{}, fmt.Errorf("%w: %s digest must be %d bytes, got %d", ErrInvalid, algo, size, len(digest))
	}
	return Fingerprint{Algorithm: algo, Digest: digest}, nil
}

// Hex returns the lowercase hex digest without the algorithm tag.
func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f.Digest)
}

// String returns the canonical "<algorithm>:<hex>" form used as registry key.
func (f Fingerprint) String() string {
	if f.IsZero() {
		return ""
	}
	return string(f.Algorithm) + ":" + f.Hex()
}

// IsZero reports whether the fingerprint is unset.
func (f Fingerprint) IsZero() bool {
	return f.Algorithm == "" && len(f.Digest) == 0
}

// Equal reports whether both fingerprints share algorithm and digest.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Algorithm == other.Algorithm && bytes.Equal(f.Digest, other.Digest)
}

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	if len(bytes.TrimSpace(text)) == 0 {
		*f = Fingerprint{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

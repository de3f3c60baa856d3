package fingerprint

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
)

func TestComputeKnownVectors(t *testing.T) {
	cases := map[string]string{
		"":    "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		"abc": "sha256:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
	}
	for input, want := range cases {
		if got := Compute([]byte(input)).String(); got != want {
			t.Fatalf("Compute(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	data := bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 4096)
	first := Compute(data)
	second := Compute(append([]byte(nil), data...))
	if !first.Equal(second) {
		t.Fatalf("fingerprints differ: %s vs %s", first, second)
	}
}

func TestComputeReaderMatchesCompute(t *testing.T) {
	data := []byte("streamed image payload")
	fromReader, err := ComputeReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ComputeReader: %v", err)
	}
	if !fromReader.Equal(Compute(data)) {
		t.Fatalf("reader fingerprint %s does not match %s", fromReader, Compute(data))
	}
}

func TestSingleByteMutationChangesFingerprint(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	for i := 0; i < 200; i++ {
		size := 1 + rng.IntN(2048)
		data := make([]byte, size)
		for j := range data {
			data[j] = byte(rng.UintN(256))
		}
		mutated := append([]byte(nil), data...)
		pos := rng.IntN(size)
		mutated[pos] ^= byte(1 + rng.UintN(255))

		if Compute(data).Equal(Compute(mutated)) {
			t.Fatalf("iteration %d: mutation at %d did not change fingerprint", i, pos)
		}
	}
}

func TestParseRoundTripAndBareHex(t *testing.T) {
	fp := Compute([]byte("IMG_A"))
	parsed, err := Parse(fp.String())
	if err != nil {
		t.Fatalf("Parse canonical: %v", err)
	}
	if !parsed.Equal(fp) {
		t.Fatalf("round trip mismatch: %s vs %s", parsed, fp)
	}

	bare, err := Parse(strings.ToUpper(fp.Hex()))
	if err != nil {
		t.Fatalf("Parse bare hex: %v", err)
	}
	if bare.Algorithm != SHA256 || !bare.Equal(fp) {
		t.Fatalf("bare hex parsed as %s", bare)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	if _, err := Parse("md5:d41d8cd98f00b204e9800998ecf8427e"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Fatalf("expected ErrUnknownAlgorithm, got %v", err)
	}
	for _, value := range []string{"", "sha256:zz", "sha256:abcd"} {
		if _, err := Parse(value); !errors.Is(err, ErrInvalid) {
			t.Fatalf("Parse(%q): expected ErrInvalid, got %v", value, err)
		}
	}
}

func TestTextMarshalling(t *testing.T) {
	fp := Compute([]byte("json"))
	text, err := fp.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var decoded Fingerprint
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if !decoded.Equal(fp) {
		t.Fatalf("decoded %s, want %s", decoded, fp)
	}

	var empty Fingerprint
	if err := empty.UnmarshalText(nil); err != nil || !empty.IsZero() {
		t.Fatalf("expected zero fingerprint from empty text, got %s (%v)", empty, err)
	}
}

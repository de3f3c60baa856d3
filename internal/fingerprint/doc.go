// Package fingerprint derives content fingerprints from raw image bytes.
//
// A fingerprint is a digest over the exact submitted bytes, never over a
// re-encoded or resized derivative. Every fingerprint carries the name of the
// algorithm that produced it so records written under one digest version can
// never be confused with keys from another.
//
// Primary entry points:
//   - Compute: fingerprints an in-memory byte slice
//   - ComputeReader: fingerprints a stream without buffering it
//   - Parse: decodes the canonical "<algorithm>:<hex>" form
//
// This package has no provenance-specific dependencies.
package fingerprint

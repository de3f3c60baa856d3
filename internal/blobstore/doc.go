// Package blobstore pushes raw content into content-addressed storage and
// hands back a Reference that resolves to the same bytes later.
//
// Every backend keys objects by a CIDv1 (raw codec, sha2-256 multihash), so
// storing identical bytes twice yields the same Reference. The registry
// never relies on that property for deduplication; fingerprints are the
// source of truth.
//
// Backends:
//   - LocalFS: sharded files under a root directory
//   - IPFS: the Kubo RPC /api/v0/add endpoint
//   - S3: any S3 compatible object store through minio-go
//
// Failures are split into ErrUnavailable (retry later) and ErrRejected
// (size, quota or policy refusal that will not succeed on retry).
package blobstore

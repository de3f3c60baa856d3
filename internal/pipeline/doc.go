// Package pipeline coordinates registration and verification of content.
//
// Service.Register runs a fixed sequence: fingerprint, registry lookup,
// oracle assessment, blob storage, registry write. A fingerprint that is
// already registered short-circuits before any adapter is called, and any
// adapter failure aborts before the write so no partial record exists.
// Service.Verify fingerprints and looks up only; it never calls the oracle or
// blob store. Failures come back as *Failure values that carry a kind, the
// stage that failed and a retry hint.
package pipeline

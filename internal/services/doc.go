// Package services defines shared utilities consumed by the pipelines, the
// daemon surfaces and the storage adapters.
//
// Key responsibilities:
//   - Context helpers that stamp request IDs, owners, and fingerprints for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper, and the ErrorClassifier
//     contract that lets typed failures advertise a kind and retryability.
//
// Use these helpers when wiring new entry points so operational behaviour
// (error handling, observability, retries) stays uniform across transports.
package services

// Package daemon coordinates the long-running provenance process.
//
// It wires configuration, the registry store, the registration pipeline and
// the Prometheus collectors into a single lifecycle with flock-based locking
// to prevent multiple instances. The daemon serves the HTTP API, reports
// dependency health for the status surfaces, and exposes the record
// operations the IPC server forwards from the CLI.
//
// Keep orchestration logic here: registration semantics live in the pipeline
// package while the daemon focuses on startup, shutdown, and transport.
package daemon

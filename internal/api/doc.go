// Package api defines wire-format types and converters for the HTTP and IPC
// layers. It translates registry records and pipeline outcomes into
// transport-friendly DTOs so clients never couple to internal types.
//
// # Key Types
//
// Record: transport representation of a registry record, including the
// gateway URL for IPFS-backed content.
//
// RegisterResponse/VerifyResponse: pipeline outcomes. RegisterResponse also
// carries the flat field set (contentHash, authenticityScore, isAuthentic,
// ipfsHash, transactionHash) that the original upload form consumes.
//
// DaemonStatus: daemon running state, backends, registry stats and
// dependency health.
//
// ErrorResponse: error message plus the failure kind and retry hint.
//
// # Design Notes
//
// Record fields use snake_case JSON tags. Timestamps use RFC3339 with
// microseconds, the precision every registry backend stores. transactionHash
// has no ledger behind it and carries "seq:<n>", the record's log position.
package api

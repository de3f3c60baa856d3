// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Record
// payloads reuse the HTTP API types so both transports stay in step. Domain
// failures travel inside responses as a RemoteError, which keeps their kind
// and retry classification intact on the client side; RPC-level errors are
// reserved for transport problems. The client bounds every call with the
// caller's context so CLI commands fail fast when the daemon is offline.
package ipc

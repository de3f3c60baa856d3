// Command provenance registers content, verifies it against the registry, and
// manages the provenance daemon.
//
// Record commands talk to a running daemon over its unix socket and fall back
// to opening the configured backends in-process when no daemon answers.
package main

// Package registry persists immutable authenticity records keyed by content
// fingerprint.
//
// A Store performs an atomic check-and-insert: the first writer for a
// fingerprint wins, receives the next sequence number, and every later writer
// gets an *AlreadyRegisteredError carrying the winning record. Records are
// never updated or deleted. Backends include an in-memory map for tests, the
// default SQLite database, Redis (a single Lua script per write) and
// PostgreSQL (advisory-locked transactions). Open selects one from config.
package registry

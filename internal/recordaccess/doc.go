// Package recordaccess gives CLI commands one record API whether the daemon
// is reachable over IPC or the registry must be opened in-process.
package recordaccess

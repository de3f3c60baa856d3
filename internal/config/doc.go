// Package config loads, normalizes, and validates provenance configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// HF_API_TOKEN and PROVENANCE_REDIS_URL. The Config type centralizes every
// knob the daemon and CLI need: where records live, which classifier scores
// uploads, and where raw bytes are pinned.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical backend names, and clear validation errors.
package config

// Package config loads, normalizes, and validates briefsmith configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENROUTER_API_KEY and BRIEFSMITH_API_TOKEN. Pipeline retry policies are
// resolved here so the orchestrator receives durations rather than raw seconds.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

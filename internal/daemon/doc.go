// Package daemon coordinates the long-running briefsmith process.
//
// It wires configuration, the session registry, blob storage, and the
// pipeline manager into a single lifecycle with flock-based locking to
// prevent multiple instances, and serves the HTTP API used by the CLI, the
// operator UI, and the public interviewee feedback form.
//
// Keep orchestration logic here: pipeline stages live in internal/pipeline
// while the daemon focuses on startup, shutdown, authentication, and mapping
// pipeline errors onto HTTP responses.
package daemon

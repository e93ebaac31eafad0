// Package api defines the wire-format types and converters for the HTTP API.
// It translates registry and pipeline models into transport-friendly DTOs so
// the CLI and browser clients render sessions without importing internal
// types.
//
// # Key Types
//
// Session / SessionSummary: the full and list views of a session.
//
// StatusView: the polling payload with the active run and latest artifact
// versions per kind.
//
// CreateSessionRequest, FeedbackRequest, SynthesisRequest: trigger bodies,
// converted into pipeline inputs by their To* methods.
//
// DaemonStatus: pipeline summary plus preflight checks for /api/status.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Statuses, run kinds, and artifact kinds are
// exposed as their lowercase string values. Timestamps are RFC3339 with
// milliseconds in UTC. Artifact content is passed through as json.RawMessage
// to avoid double encoding.
//
// The feedback body keeps the field names of the interviewee form
// (originalAssertion, correction, correctionType) so existing clients keep
// working.
package api

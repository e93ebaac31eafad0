// Package registry persists sessions, their status machine, corrections,
// opt-out markers, pipeline runs, the artifact version index, and the audit
// trail in SQLite.
//
// Status changes go through Transition, a compare-and-swap on the stored
// status that also appends an audit entry in the same transaction. The runs
// table carries a partial unique index on (session_id, kind) for unfinished
// runs, which is what keeps at most one run of each kind in flight per
// session. Everything else in the pipeline relies on these two guards rather
// than on in-process locks.
package registry

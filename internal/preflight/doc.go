// Package preflight provides readiness checks for the filesystem paths,
// blob storage, and external services that briefsmith depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and reports the results through
//     /api/status so operators can see why a run is likely to fail.
//   - The CLI "briefsmith status" command renders the same results as a table.
//
// Checks are gated by configuration: an unset ntfy topic or webhook is
// reported as skipped rather than failed.
package preflight

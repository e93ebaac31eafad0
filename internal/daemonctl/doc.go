// Package daemonctl starts, stops, and inspects the briefsmith daemon from
// the CLI: detached launch, pid-file based shutdown, and a status snapshot
// that falls back to local readiness checks when the API is down.
package daemonctl

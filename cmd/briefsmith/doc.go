// Package main hosts the briefsmith CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the daemon API: creating sessions, polling status, reading
// artifacts and audit trails, and firing the operator triggers (send packet,
// update brief, synthesis, retry). It also runs the daemon in the foreground
// and scaffolds configuration.
//
// Keep this package lean: add new functionality to the internal packages and
// the daemon API first, then surface it through a dedicated command here.
package main

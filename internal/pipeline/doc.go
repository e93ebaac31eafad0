// Package pipeline runs the three session pipelines (brief, revision,
// synthesis) and exposes the triggers that start them.
//
// A trigger validates the session's status, reserves a run keyed by
// (session, kind) and moves the session to the run's first in-flight status
// in one registry transaction, then executes the run on its own goroutine.
// Every later status change is a compare-and-set against the status the run
// last wrote, so concurrent triggers and interviewee opt-outs can never
// interleave silently. Next is the pure transition function the runs consult.
//
// Stage work (ingestion, generation, quality evaluation, revision, synthesis)
// is retried per the stage's RetryPolicy when it fails transiently. Permanent
// or exhausted failures land the session in the stage's *_failed status with
// an error message; callers observe outcomes only by polling status.
//
// The manager never schedules runs on its own. On Start, and periodically
// afterwards, it reclaims runs whose heartbeat went stale and routes their
// sessions to the failure status of the stage they were in.
package pipeline

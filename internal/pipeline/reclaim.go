package pipeline

import (
	"context"
	"errors"
	"fmt"

	"briefsmith/internal/logging"
	"briefsmith/internal/registry"
	"briefsmith/internal/services"
)

// reclaimRun finishes a run whose heartbeat went stale as interrupted and
// routes its session to the failure status of the stage it was in. The run
// is never resumed.
func (m *Manager) reclaimRun(ctx context.Context, run *registry.Run) error {
	sess, err := m.store.Get(ctx, run.SessionID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return m.store.FinishRun(ctx, run.ID, registry.OutcomeInterrupted)
		}
		return err
	}
	if err := m.store.FinishRun(ctx, run.ID, registry.OutcomeInterrupted); err != nil {
		return err
	}
	if !contains(runStatuses[run.Kind], sess.Status) {
		return nil
	}

	event := EventFailed
	detail := registry.TransitionDetail{
		Actor:    registry.ActorSystem,
		Metadata: map[string]any{"run_id": run.ID, "reason": "stale heartbeat"},
	}
	if run.Kind == registry.RunRevision && sess.OptedOut {
		event = EventOptedOut
		detail.Action = registry.ActionOptedOut
	} else {
		message := fmt.Sprintf("interrupted while %s; retry to continue", sess.Status)
		detail.Update.ErrorMessage = &message
	}
	to, err := Next(run.Kind, sess.Status, event, 0)
	if err != nil {
		return err
	}
	if err := m.store.Transition(ctx, sess.ID, sess.Status, to, detail); err != nil {
		if errors.Is(err, services.ErrPreconditionFailed) {
			return nil
		}
		return err
	}
	logging.WarnWithContext(logging.WithContext(services.WithSessionID(ctx, sess.ID), m.logger), "reclaimed interrupted run", "run_interrupted",
		logging.Int64("run_id", run.ID),
		logging.String(logging.FieldRunKind, string(run.Kind)),
		logging.String("from_status", string(sess.Status)),
		logging.String("resolved_status", string(to)),
		logging.String(logging.FieldErrorHint, "trigger the run again"),
	)
	return nil
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"briefsmith/internal/brief"
	"briefsmith/internal/logging"
	"briefsmith/internal/notifications"
	"briefsmith/internal/registry"
	"briefsmith/internal/services"
)

// runState is the mutable view a run keeps of its session.
type runState struct {
	run           *registry.Run
	session       *registry.Session
	status        registry.Status
	regenerations int
	notes         brief.SynthesisNotes
}

func runContext(parent context.Context, run *registry.Run) context.Context {
	ctx := services.WithSessionID(parent, run.SessionID)
	ctx = services.WithRunKind(ctx, string(run.Kind))
	return services.WithRequestID(ctx, run.AttemptToken)
}

// startRun reserves a run of kind for sess and launches body for it. An
// unfinished run with the same attempt token is returned as a replay without
// launching anything; any other unfinished run of the kind is a conflict.
func (m *Manager) startRun(ctx context.Context, sess *registry.Session, kind registry.RunKind, token, actor string, setup func(*runState), body func(context.Context, *runState)) (*registry.Run, error) {
	if token == "" {
		token = uuid.NewString()
	}
	active, err := m.store.ActiveRun(ctx, sess.ID, kind)
	if err != nil {
		return nil, err
	}
	if active != nil {
		if active.AttemptToken == token {
			return active, nil
		}
		return nil, fmt.Errorf("%w: %s run %d already in flight for session %s", services.ErrConflict, kind, active.ID, sess.ID)
	}

	to, err := Next(kind, sess.Status, EventStart, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot start %s run while session is %s", services.ErrPreconditionFailed, kind, sess.Status)
	}
	run, replay, err := m.store.ReserveRun(ctx, registry.RunRequest{
		SessionID:    sess.ID,
		Kind:         kind,
		AttemptToken: token,
		Actor:        actor,
		Stage:        string(to),
		From:         sess.Status,
		To:           to,
		Metadata:     map[string]any{"run_kind": string(kind)},
	})
	if err != nil {
		return nil, err
	}
	if replay {
		return run, nil
	}

	rs := &runState{run: run, session: sess, status: to}
	if setup != nil {
		setup(rs)
	}
	m.launch(run, func(ctx context.Context) {
		logging.WithContext(ctx, m.logger).Info("run started",
			logging.String(logging.FieldEventType, "run_start"),
			logging.Int64("run_id", run.ID),
		)
		body(ctx, rs)
	})
	return run, nil
}

func (m *Manager) regenerationsLeft(rs *runState) int {
	return max(m.cfg.Pipeline.MaxRegenerations-rs.regenerations, 0)
}

// advance applies event to the run's current status with a compare-and-set
// transition.
func (m *Manager) advance(ctx context.Context, rs *runState, event Event, detail registry.TransitionDetail) error {
	to, err := Next(rs.run.Kind, rs.status, event, m.regenerationsLeft(rs))
	if err != nil {
		return err
	}
	if detail.Actor == "" {
		detail.Actor = registry.ActorSystem
	}
	if detail.Metadata == nil {
		detail.Metadata = map[string]any{}
	}
	detail.Metadata["run_id"] = rs.run.ID
	if err := m.store.Transition(ctx, rs.run.SessionID, rs.status, to, detail); err != nil {
		return err
	}
	rs.status = to
	return nil
}

// runStage executes fn under the retry policy of the named stage, recording
// each attempt on the run.
func (m *Manager) runStage(ctx context.Context, rs *runState, stage string, fn func(ctx context.Context) error) error {
	policy := PolicyFromConfig(m.cfg.StagePolicyFor(stage))
	stageCtx := services.WithStage(ctx, string(rs.status))
	logger := m.stageLogger(stageCtx)
	started := time.Now()
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("max_attempts", max(policy.Attempts, 1)),
	)

	err := policy.Do(stageCtx, func(attempt int) {
		if err := m.store.RecordStageAttempt(stageCtx, rs.run.ID, string(rs.status), attempt); err != nil {
			logger.Warn("record stage attempt failed", logging.Error(err))
		}
		if attempt > 1 {
			logger.Info("retrying stage",
				logging.String(logging.FieldEventType, "stage_retry"),
				logging.Attempt(attempt),
			)
		}
	}, fn)
	if err != nil {
		return err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(started)),
	)
	return nil
}

func (m *Manager) stageLogger(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, m.logger)
}

// fail routes the run to the failure status of its current stage, records
// the error message, and finishes the run. A revision failing while an
// opt-out is pending ends in opted_out instead. A cancelled run context
// means the daemon is stopping; the run is left for reclamation.
func (m *Manager) fail(ctx context.Context, rs *runState, stageErr error, update registry.FieldUpdate) {
	if ctx.Err() == nil && rs.run.Kind == registry.RunRevision && rs.status == registry.StatusUpdatingBrief && m.hasOptedOut(ctx, rs) {
		m.stageLogger(ctx).Info("revision failure superseded by opt-out", logging.Error(stageErr))
		m.routeOptOut(ctx, rs)
		return
	}
	m.failStage(ctx, rs, stageErr, update)
}

func (m *Manager) failStage(ctx context.Context, rs *runState, stageErr error, update registry.FieldUpdate) {
	logger := m.stageLogger(services.WithStage(ctx, string(rs.status)))
	if ctx.Err() != nil {
		logger.Debug("run interrupted by shutdown")
		return
	}
	message := strings.TrimSpace(services.Message(stageErr))
	if message == "" {
		message = fmt.Sprintf("%s failed", rs.status)
	}
	update.ErrorMessage = &message
	failedAt := rs.status

	to, err := Next(rs.run.Kind, rs.status, EventFailed, 0)
	if err == nil {
		err = m.advance(ctx, rs, EventFailed, registry.TransitionDetail{
			Metadata: map[string]any{"error": message},
			Update:   update,
		})
	}
	if err != nil {
		logger.Error("failed to persist stage failure", logging.Error(err))
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.String("resolved_status", string(to)),
		logging.String("error_message", message),
		logging.Bool("transient", services.IsTransient(stageErr)),
		logging.Error(stageErr),
		logging.String(logging.FieldErrorHint, failureHint(failedAt)),
	)
	m.finish(ctx, rs, registry.OutcomeFailed)
	m.setLastError(stageErr)
	m.publish(ctx, notifications.EventError, notifications.Payload{
		"stage":     string(failedAt),
		"company":   rs.session.CompanyName,
		"error":     message,
		"sessionID": rs.session.ID,
	})
}

func failureHint(status registry.Status) string {
	switch status {
	case registry.StatusIngesting:
		return "check the source URLs are public and reachable, then retry"
	case registry.StatusGenerating, registry.StatusRegenerating, registry.StatusUpdatingBrief, registry.StatusSynthesizing:
		return "check llm.api_key and the model endpoint, then retry"
	case registry.StatusQualityChecking:
		return "inspect the brief quality issues in the audit trail"
	}
	return "check logs for details"
}

func (m *Manager) finish(ctx context.Context, rs *runState, outcome string) {
	if err := m.store.FinishRun(ctx, rs.run.ID, outcome); err != nil {
		m.stageLogger(ctx).Error("failed to finish run", logging.Int64("run_id", rs.run.ID), logging.Error(err))
		return
	}
	m.stageLogger(ctx).Info("run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int64("run_id", rs.run.ID),
		logging.String("outcome", outcome),
		logging.String("status", string(rs.status)),
	)
}

func (m *Manager) audit(ctx context.Context, sessionID, actor, action string, detail map[string]any) {
	if actor == "" {
		actor = registry.ActorSystem
	}
	if err := m.store.AppendAudit(ctx, registry.AuditEntry{
		Actor:     actor,
		Action:    action,
		SessionID: sessionID,
		Detail:    detail,
	}); err != nil {
		m.stageLogger(ctx).Warn("audit append failed", logging.String("action", action), logging.Error(err))
	}
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(m.stageLogger(ctx), "notification failed", "notification_failure",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

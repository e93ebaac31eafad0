package pipeline

import (
	"context"
	"strconv"

	"briefsmith/internal/artifact"
	"briefsmith/internal/brief"
	"briefsmith/internal/config"
	"briefsmith/internal/generation"
	"briefsmith/internal/logging"
	"briefsmith/internal/notifications"
	"briefsmith/internal/registry"
	"briefsmith/internal/revision"
	"briefsmith/internal/services"
)

// runRevision applies the session's merged corrections to the latest brief.
// An opt-out recorded before or during the run routes the session to
// opted_out and discards the revision.
func (m *Manager) runRevision(ctx context.Context, rs *runState) {
	sess := rs.session
	if m.hasOptedOut(ctx, rs) {
		m.routeOptOut(ctx, rs)
		return
	}

	var current brief.Brief
	fromVersion, err := m.artifacts.LatestJSON(ctx, sess.ID, artifact.KindBrief, &current)
	if err != nil {
		m.fail(ctx, rs, err, registry.FieldUpdate{})
		return
	}
	corrections, err := m.store.Corrections(ctx, sess.ID)
	if err != nil {
		m.fail(ctx, rs, err, registry.FieldUpdate{})
		return
	}
	req := revision.Merge(current, corrections, false)
	if req.IsEmpty() {
		m.fail(ctx, rs, services.Wrap(services.ErrValidation, string(rs.status), "merge corrections", "no corrections to apply", nil), registry.FieldUpdate{})
		return
	}
	req.SelectedQuestions = revision.SelectQuestions(current, sess.SelectedQuestions)

	var revised brief.Brief
	err = m.runStage(ctx, rs, config.StageRevision, func(ctx context.Context) error {
		var err error
		revised, err = m.generator.ReviseBrief(ctx, generation.RevisionInput{
			CompanyName: sess.CompanyName,
			LeaderName:  sess.LeaderName,
			Brief:       current,
			Request:     req,
		})
		return err
	})
	if ctx.Err() == nil && m.hasOptedOut(ctx, rs) {
		m.routeOptOut(ctx, rs)
		return
	}
	if err != nil {
		m.fail(ctx, rs, err, registry.FieldUpdate{})
		return
	}

	version, err := m.artifacts.PutJSON(ctx, sess.ID, artifact.KindBrief, revised, artifact.Meta{
		RunToken: rs.run.AttemptToken,
		Notes:    map[string]string{"revision_of": strconv.Itoa(fromVersion)},
	})
	if err != nil {
		m.fail(ctx, rs, err, registry.FieldUpdate{})
		return
	}
	m.audit(ctx, sess.ID, registry.ActorSystem, registry.ActionBriefUpdated, map[string]any{
		"from_version":       fromVersion,
		"version":            version,
		"changes":            len(req.Changes),
		"matched":            len(req.Matched()),
		"selected_questions": req.SelectedQuestions,
	})
	if err := m.advance(ctx, rs, EventSucceeded, registry.TransitionDetail{
		Metadata: map[string]any{"version": version},
		Update:   registry.FieldUpdate{CurrentBriefVersion: &version, ErrorMessage: new("")},
	}); err != nil {
		m.fail(ctx, rs, err, registry.FieldUpdate{})
		return
	}
	m.finish(ctx, rs, registry.OutcomeSucceeded)

	// An opt-out that arrived between the last check and the transition
	// only set the marker; apply it now.
	if m.hasOptedOut(ctx, rs) {
		if err := m.store.Transition(ctx, sess.ID, rs.status, registry.StatusOptedOut, registry.TransitionDetail{
			Actor:    registry.ActorInterviewee,
			Action:   registry.ActionOptedOut,
			Metadata: map[string]any{"pending": false},
		}); err != nil {
			m.stageLogger(ctx).Error("failed to apply pending opt-out", logging.Error(err))
			return
		}
		rs.status = registry.StatusOptedOut
		m.publish(ctx, notifications.EventOptedOut, notifications.Payload{"company": sess.CompanyName, "leader": sess.LeaderName})
		return
	}
	m.publish(ctx, notifications.EventBriefUpdated, notifications.Payload{"company": sess.CompanyName, "version": version})
}

func (m *Manager) hasOptedOut(ctx context.Context, rs *runState) bool {
	marker, err := m.store.OptOut(ctx, rs.session.ID)
	if err != nil {
		m.stageLogger(ctx).Warn("opt-out lookup failed", logging.Error(err))
		return false
	}
	return marker != nil
}

func (m *Manager) routeOptOut(ctx context.Context, rs *runState) {
	if err := m.advance(ctx, rs, EventOptedOut, registry.TransitionDetail{
		Actor:    registry.ActorInterviewee,
		Action:   registry.ActionOptedOut,
		Metadata: map[string]any{"pending": false},
	}); err != nil {
		m.failStage(ctx, rs, err, registry.FieldUpdate{})
		return
	}
	m.stageLogger(ctx).Info("revision discarded after opt-out", logging.String(logging.FieldEventType, "opt_out"))
	m.finish(ctx, rs, registry.OutcomeOptedOut)
	m.publish(ctx, notifications.EventOptedOut, notifications.Payload{
		"company": rs.session.CompanyName,
		"leader":  rs.session.LeaderName,
	})
}

package pipeline

import (
	"context"

	"briefsmith/internal/artifact"
	"briefsmith/internal/brief"
	"briefsmith/internal/config"
	"briefsmith/internal/generation"
	"briefsmith/internal/notifications"
	"briefsmith/internal/registry"
)

// runSynthesis turns the interviewer's notes and the latest brief into a new
// synthesis version.
func (m *Manager) runSynthesis(ctx context.Context, rs *runState) {
	sess := rs.session
	var current brief.Brief
	briefVersion, err := m.artifacts.LatestJSON(ctx, sess.ID, artifact.KindBrief, &current)
	if err != nil {
		m.fail(ctx, rs, err, registry.FieldUpdate{})
		return
	}

	var out brief.Synthesis
	err = m.runStage(ctx, rs, config.StageSynthesis, func(ctx context.Context) error {
		var err error
		out, err = m.generator.Synthesize(ctx, generation.SynthesisInput{
			CompanyName:  sess.CompanyName,
			LeaderName:   sess.LeaderName,
			Brief:        current,
			BriefVersion: briefVersion,
			Notes:        rs.notes,
		})
		return err
	})
	if err != nil {
		m.fail(ctx, rs, err, registry.FieldUpdate{})
		return
	}

	version, err := m.artifacts.PutJSON(ctx, sess.ID, artifact.KindSynthesis, out, artifact.Meta{RunToken: rs.run.AttemptToken})
	if err != nil {
		m.fail(ctx, rs, err, registry.FieldUpdate{})
		return
	}
	m.audit(ctx, sess.ID, registry.ActorSystem, registry.ActionSynthesisGenerated, map[string]any{
		"version":       version,
		"brief_version": briefVersion,
	})
	if err := m.advance(ctx, rs, EventSucceeded, registry.TransitionDetail{
		Metadata: map[string]any{"version": version},
		Update:   registry.FieldUpdate{ErrorMessage: new("")},
	}); err != nil {
		m.fail(ctx, rs, err, registry.FieldUpdate{})
		return
	}
	m.finish(ctx, rs, registry.OutcomeSucceeded)
	m.publish(ctx, notifications.EventSynthesisReady, notifications.Payload{"company": sess.CompanyName, "version": version})
}

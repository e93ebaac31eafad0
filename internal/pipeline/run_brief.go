package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"briefsmith/internal/artifact"
	"briefsmith/internal/brief"
	"briefsmith/internal/config"
	"briefsmith/internal/generation"
	"briefsmith/internal/ingest"
	"briefsmith/internal/logging"
	"briefsmith/internal/notifications"
	"briefsmith/internal/quality"
	"briefsmith/internal/registry"
)

// runBrief executes ingestion, generation, and quality evaluation with at
// most MaxRegenerations automatic regenerations.
func (m *Manager) runBrief(ctx context.Context, rs *runState) {
	sess := rs.session
	sources, err := m.ingestSources(ctx, rs)
	if err != nil {
		failed := sources.FailedURLs
		m.fail(ctx, rs, err, registry.FieldUpdate{SourcesFailed: &failed})
		return
	}
	failed := sources.FailedURLs
	if failed == nil {
		failed = []string{}
	}
	if err := m.advance(ctx, rs, EventSucceeded, registry.TransitionDetail{
		Update: registry.FieldUpdate{SourcesFailed: &failed},
	}); err != nil {
		m.fail(ctx, rs, err, registry.FieldUpdate{})
		return
	}

	var issues []string
	for {
		b, version, err := m.generateBrief(ctx, rs, sources, issues)
		if err != nil {
			m.fail(ctx, rs, err, registry.FieldUpdate{})
			return
		}
		if err := m.advance(ctx, rs, EventSucceeded, registry.TransitionDetail{
			Update: registry.FieldUpdate{CurrentBriefVersion: &version},
		}); err != nil {
			m.fail(ctx, rs, err, registry.FieldUpdate{})
			return
		}

		result, err := m.evaluateBrief(ctx, rs, b, version)
		if err != nil {
			m.fail(ctx, rs, err, registry.FieldUpdate{})
			return
		}
		score := result.Score
		if result.Passed {
			if err := m.advance(ctx, rs, EventQualityPassed, registry.TransitionDetail{
				Metadata: map[string]any{"score": score, "version": version},
				Update:   registry.FieldUpdate{QualityScore: &score, ErrorMessage: new("")},
			}); err != nil {
				m.fail(ctx, rs, err, registry.FieldUpdate{})
				return
			}
			m.finish(ctx, rs, registry.OutcomeSucceeded)
			m.publish(ctx, notifications.EventBriefReady, notifications.Payload{
				"company": sess.CompanyName,
				"version": version,
				"score":   score,
			})
			return
		}

		if m.regenerationsLeft(rs) > 0 {
			if err := m.advance(ctx, rs, EventQualityFailed, registry.TransitionDetail{
				Metadata: map[string]any{"score": score, "version": version, "issues": result.Issues},
				Update:   registry.FieldUpdate{QualityScore: &score},
			}); err != nil {
				m.fail(ctx, rs, err, registry.FieldUpdate{})
				return
			}
			rs.regenerations++
			issues = result.Issues
			continue
		}

		message := qualityFailureMessage(result, m.cfg.Pipeline.QualityThreshold)
		if err := m.advance(ctx, rs, EventQualityFailed, registry.TransitionDetail{
			Metadata: map[string]any{"score": score, "version": version, "issues": result.Issues},
			Update:   registry.FieldUpdate{QualityScore: &score, ErrorMessage: &message},
		}); err != nil {
			m.fail(ctx, rs, err, registry.FieldUpdate{})
			return
		}
		logging.WarnWithContext(m.stageLogger(ctx), "brief failed quality evaluation", "quality_failure",
			logging.Int("score", score),
			logging.Int("regenerations", rs.regenerations),
			logging.String(logging.FieldErrorHint, "review the source material, then retry the session"),
		)
		m.finish(ctx, rs, registry.OutcomeFailed)
		m.publish(ctx, notifications.EventError, notifications.Payload{
			"stage":     string(registry.StatusQualityChecking),
			"company":   sess.CompanyName,
			"error":     message,
			"sessionID": sess.ID,
		})
		return
	}
}

func qualityFailureMessage(result quality.Result, threshold int) string {
	message := fmt.Sprintf("quality score %d is below threshold %d", result.Score, threshold)
	if len(result.Issues) > 0 {
		message += ": " + strings.Join(result.Issues, "; ")
	}
	return message
}

func (m *Manager) ingestSources(ctx context.Context, rs *runState) (brief.IngestResult, error) {
	var sources brief.IngestResult
	err := m.runStage(ctx, rs, config.StageIngestion, func(ctx context.Context) error {
		var err error
		sources, err = m.ingester.Ingest(ctx, ingest.Request{
			URLs:      rs.session.SourceURLs,
			UploadKey: rs.session.UploadKey,
		})
		return err
	})
	if err != nil {
		return sources, err
	}
	if _, err := m.artifacts.PutJSON(ctx, rs.session.ID, artifact.KindSources, sources, artifact.Meta{RunToken: rs.run.AttemptToken}); err != nil {
		return sources, err
	}
	m.audit(ctx, rs.session.ID, registry.ActorSystem, registry.ActionSourcesIngested, map[string]any{
		"sources":     len(sources.Succeeded()),
		"failed_urls": sources.FailedURLs,
		"chunks":      len(sources.Chunks),
	})
	return sources, nil
}

// generateBrief drafts a brief and its packet and stores both as new
// versions. It returns the brief and its version.
func (m *Manager) generateBrief(ctx context.Context, rs *runState, sources brief.IngestResult, issues []string) (brief.Brief, int, error) {
	stage := config.StageGeneration
	if rs.status == registry.StatusRegenerating {
		stage = "regeneration"
	}
	sess := rs.session
	var draft generation.Draft
	err := m.runStage(ctx, rs, stage, func(ctx context.Context) error {
		var err error
		draft, err = m.generator.GenerateBrief(ctx, generation.BriefInput{
			CompanyName:    sess.CompanyName,
			LeaderName:     sess.LeaderName,
			LeaderTitle:    sess.LeaderTitle,
			Sources:        sources,
			PreviousIssues: issues,
		})
		return err
	})
	if err != nil {
		return brief.Brief{}, 0, err
	}

	meta := artifact.Meta{RunToken: rs.run.AttemptToken}
	if rs.regenerations > 0 {
		meta.Notes = map[string]string{"regeneration": strconv.Itoa(rs.regenerations)}
	}
	version, err := m.artifacts.PutJSON(ctx, sess.ID, artifact.KindBrief, draft.Brief, meta)
	if err != nil {
		return brief.Brief{}, 0, err
	}
	packetVersion, err := m.artifacts.PutJSON(ctx, sess.ID, artifact.KindPacket, draft.Packet, meta)
	if err != nil {
		return brief.Brief{}, 0, err
	}
	m.audit(ctx, sess.ID, registry.ActorSystem, registry.ActionBriefGenerated, map[string]any{
		"version":        version,
		"packet_version": packetVersion,
		"questions":      len(draft.Brief.Questions),
		"regeneration":   rs.regenerations > 0,
	})
	return draft.Brief, version, nil
}

func (m *Manager) evaluateBrief(ctx context.Context, rs *runState, b brief.Brief, version int) (quality.Result, error) {
	var result quality.Result
	err := m.runStage(ctx, rs, config.StageQuality, func(ctx context.Context) error {
		var err error
		result, err = m.gate.Evaluate(ctx, b)
		return err
	})
	if err != nil {
		return result, err
	}
	m.audit(ctx, rs.session.ID, registry.ActorSystem, registry.ActionQualityChecked, map[string]any{
		"version":   version,
		"score":     result.Score,
		"passed":    result.Passed,
		"threshold": m.cfg.Pipeline.QualityThreshold,
		"issues":    result.Issues,
	})
	return result, nil
}

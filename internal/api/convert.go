package api

import (
	"sort"
	"time"

	"briefsmith/internal/brief"
	"briefsmith/internal/pipeline"
	"briefsmith/internal/registry"
)

// FromSession converts a registry session to its API representation.
func FromSession(sess *registry.Session) Session {
	if sess == nil {
		return Session{}
	}
	return Session{
		ID:                  sess.ID,
		CompanyName:         sess.CompanyName,
		LeaderName:          sess.LeaderName,
		LeaderTitle:         sess.LeaderTitle,
		IntervieweeEmail:    sess.IntervieweeEmail,
		SourceURLs:          nonNil(sess.SourceURLs),
		HasUpload:           sess.HasUpload,
		Uploaded:            sess.UploadKey != "",
		Status:              string(sess.Status),
		CurrentBriefVersion: sess.CurrentBriefVersion,
		SourcesFailed:       sess.SourcesFailed,
		SelectedQuestions:   sess.SelectedQuestions,
		QualityScore:        sess.QualityScore,
		ErrorMessage:        sess.ErrorMessage,
		PacketSentAt:        formatTimePtr(sess.PacketSentAt),
		OptedOut:            sess.OptedOut,
		CreatedAt:           formatTime(sess.CreatedAt),
		UpdatedAt:           formatTime(sess.UpdatedAt),
	}
}

// FromSummaries converts the list view of sessions.
func FromSummaries(items []registry.Summary) []SessionSummary {
	out := make([]SessionSummary, 0, len(items))
	for _, item := range items {
		out = append(out, SessionSummary{
			ID:                  item.ID,
			CompanyName:         item.CompanyName,
			LeaderName:          item.LeaderName,
			Status:              string(item.Status),
			CurrentBriefVersion: item.CurrentBriefVersion,
			CreatedAt:           formatTime(item.CreatedAt),
			UpdatedAt:           formatTime(item.UpdatedAt),
		})
	}
	return out
}

// FromRun converts a run record. A nil run yields nil.
func FromRun(run *registry.Run) *Run {
	if run == nil {
		return nil
	}
	return &Run{
		ID:            run.ID,
		Kind:          string(run.Kind),
		AttemptToken:  run.AttemptToken,
		Stage:         run.Stage,
		Attempts:      run.Attempts,
		Outcome:       run.Outcome,
		StartedAt:     formatTime(run.StartedAt),
		FinishedAt:    formatTimePtr(run.FinishedAt),
		LastHeartbeat: formatTimePtr(run.LastHeartbeat),
	}
}

// FromStatusView converts the registry polling view.
func FromStatusView(view registry.StatusView) StatusView {
	latest := make(map[string]int, len(view.LatestVersions))
	for kind, version := range view.LatestVersions {
		latest[string(kind)] = version
	}
	return StatusView{
		SessionID:           view.SessionID,
		Status:              string(view.Status),
		CurrentBriefVersion: view.CurrentBriefVersion,
		LatestVersions:      latest,
		ActiveRun:           FromRun(view.ActiveRun),
		ErrorMessage:        view.ErrorMessage,
		QualityScore:        view.QualityScore,
		SourcesFailed:       view.SourcesFailed,
		OptedOut:            view.OptedOut,
		UpdatedAt:           formatTime(view.UpdatedAt),
	}
}

// FromArtifactRecords converts version metadata, oldest first.
func FromArtifactRecords(records []registry.ArtifactRecord) []ArtifactVersion {
	out := make([]ArtifactVersion, 0, len(records))
	for _, rec := range records {
		out = append(out, ArtifactVersion{
			Kind:      string(rec.Kind),
			Version:   rec.Version,
			SHA256:    rec.SHA256,
			Size:      rec.Size,
			RunToken:  rec.RunToken,
			CreatedAt: formatTime(rec.CreatedAt),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// FromAuditEntries converts audit records.
func FromAuditEntries(entries []registry.AuditEntry) []AuditEntry {
	out := make([]AuditEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, AuditEntry{
			ID:        entry.ID,
			Timestamp: formatTime(entry.Timestamp),
			Actor:     entry.Actor,
			Action:    entry.Action,
			Detail:    entry.Detail,
		})
	}
	return out
}

// FromPipelineSummary converts the manager summary.
func FromPipelineSummary(summary pipeline.Summary) PipelineStatus {
	return PipelineStatus{
		Running:    summary.Running,
		ActiveRuns: summary.ActiveRuns,
		LastError:  summary.LastError,
	}
}

// ToPipeline converts the create body for the given owner. token is the
// caller's idempotency key, if any.
func (r CreateSessionRequest) ToPipeline(userID, token string) pipeline.CreateRequest {
	return pipeline.CreateRequest{
		UserID:           userID,
		CompanyName:      r.CompanyName,
		LeaderName:       r.LeaderName,
		LeaderTitle:      r.LeaderTitle,
		IntervieweeEmail: r.IntervieweeEmail,
		SourceURLs:       r.SourceURLs,
		HasUpload:        r.HasUpload,
		AttemptToken:     token,
	}
}

// ToPipeline converts the interviewee form body.
func (r FeedbackRequest) ToPipeline() pipeline.Feedback {
	fb := pipeline.Feedback{
		SelectedQuestions: r.SelectedQuestions,
		OptOut:            r.OptOut,
		OptOutReason:      r.OptOutReason,
	}
	for _, c := range r.Corrections {
		fb.Corrections = append(fb.Corrections, pipeline.CorrectionInput{
			Original:  c.Original,
			Corrected: c.Corrected,
			Category:  c.Category,
			Note:      c.Note,
		})
	}
	return fb
}

// ToNotes converts the synthesis body.
func (r SynthesisRequest) ToNotes() brief.SynthesisNotes {
	return brief.SynthesisNotes{
		KeyInsights:     r.KeyInsights,
		Surprises:       r.Surprises,
		Constraints:     r.Constraints,
		FollowUpActions: r.FollowUpActions,
		RawNotes:        r.RawNotes,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"briefsmith/internal/artifact"
	"briefsmith/internal/blobstore"
	"briefsmith/internal/brief"
	"briefsmith/internal/logging"
	"briefsmith/internal/notifications"
	"briefsmith/internal/registry"
	"briefsmith/internal/services"
	"briefsmith/internal/textutil"
)

const (
	maxCorrections       = 50
	maxCorrectionChars   = 2000
	maxSelectedQuestions = brief.MaxPacketQuestions
)

// CreateRequest describes a new session.
type CreateRequest struct {
	UserID           string
	CompanyName      string
	LeaderName       string
	LeaderTitle      string
	IntervieweeEmail string
	SourceURLs       []string
	HasUpload        bool
	AttemptToken     string
}

// CorrectionInput is one interviewee correction as submitted.
type CorrectionInput struct {
	Original  string
	Corrected string
	Category  string
	Note      string
}

// Feedback is one interviewee submission: corrections and question picks,
// or an opt-out.
type Feedback struct {
	Corrections       []CorrectionInput
	SelectedQuestions []string
	OptOut            bool
	OptOutReason      string
}

// CreateSession validates and stores a new session and starts its brief
// run. Sessions created with HasUpload start the run once the document is
// uploaded. A repeated AttemptToken from the same user returns the session
// the first request created instead of a second one.
func (m *Manager) CreateSession(ctx context.Context, req CreateRequest) (*registry.Session, error) {
	in, err := m.normalizeCreate(req)
	if err != nil {
		return nil, err
	}
	in.CreateToken = strings.TrimSpace(req.AttemptToken)
	sess, err := m.store.Create(ctx, in)
	if err != nil {
		if in.CreateToken != "" && errors.Is(err, services.ErrConflict) {
			return m.replayCreate(ctx, in.UserID, in.CreateToken)
		}
		return nil, err
	}
	logging.WithContext(services.WithSessionID(ctx, sess.ID), m.logger).Info("session created",
		logging.String("company", sess.CompanyName),
		logging.Int("sources", len(sess.SourceURLs)),
		logging.Bool("has_upload", sess.HasUpload),
	)
	m.publish(ctx, notifications.EventSessionCreated, notifications.Payload{
		"company": sess.CompanyName,
		"leader":  sess.LeaderName,
	})
	if sess.HasUpload {
		return sess, nil
	}
	if _, err := m.startRun(ctx, sess, registry.RunBrief, in.CreateToken, req.UserID, nil, m.runBrief); err != nil {
		return nil, err
	}
	return m.store.Get(ctx, sess.ID)
}

// replayCreate returns the session an earlier create with token produced,
// starting its brief run if that request stored the session but never got
// the run going.
func (m *Manager) replayCreate(ctx context.Context, userID, token string) (*registry.Session, error) {
	sess, err := m.store.FindByCreateToken(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	if !m.awaitingFirstRun(sess) {
		return sess, nil
	}
	if _, err := m.startRun(ctx, sess, registry.RunBrief, token, userID, nil, m.runBrief); err != nil {
		return nil, err
	}
	return m.store.Get(ctx, sess.ID)
}

// awaitingFirstRun reports whether sess is still in created with everything
// its brief run needs.
func (m *Manager) awaitingFirstRun(sess *registry.Session) bool {
	return sess.Status == registry.StatusCreated && (!sess.HasUpload || sess.UploadKey != "")
}

func (m *Manager) normalizeCreate(req CreateRequest) (registry.NewSession, error) {
	in := registry.NewSession{
		UserID:           strings.TrimSpace(req.UserID),
		CompanyName:      textutil.NormalizeName(req.CompanyName),
		LeaderName:       textutil.NormalizeName(req.LeaderName),
		LeaderTitle:      textutil.CollapseSpace(req.LeaderTitle),
		IntervieweeEmail: strings.TrimSpace(req.IntervieweeEmail),
		HasUpload:        req.HasUpload,
	}
	var problems []string
	if in.UserID == "" {
		problems = append(problems, "user id is required")
	}
	if in.CompanyName == "" {
		problems = append(problems, "company name is required")
	}
	if in.LeaderName == "" {
		problems = append(problems, "leader name is required")
	}
	if in.IntervieweeEmail != "" {
		if _, err := mail.ParseAddress(in.IntervieweeEmail); err != nil {
			problems = append(problems, fmt.Sprintf("interviewee email %q is invalid", in.IntervieweeEmail))
		}
	}
	seen := make(map[string]struct{}, len(req.SourceURLs))
	for _, raw := range req.SourceURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parsed, err := url.Parse(raw)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			problems = append(problems, fmt.Sprintf("source url %q must be an absolute http(s) URL", raw))
			continue
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		in.SourceURLs = append(in.SourceURLs, raw)
	}
	if limit := m.cfg.Pipeline.MaxSources; limit > 0 && len(in.SourceURLs) > limit {
		problems = append(problems, fmt.Sprintf("at most %d source urls are allowed", limit))
	}
	if len(in.SourceURLs) == 0 && !in.HasUpload {
		problems = append(problems, "at least one source url or an upload is required")
	}
	if len(problems) > 0 {
		return in, fmt.Errorf("%w: %s", services.ErrValidation, strings.Join(problems, "; "))
	}
	return in, nil
}

// Upload stores the session's document. A session still in created starts
// its brief run; after ingestion_failed the caller retries explicitly.
func (m *Manager) Upload(ctx context.Context, id, filename string, data []byte, token string) (*registry.Session, error) {
	if m.blobs == nil {
		return nil, fmt.Errorf("%w: no blob store configured for uploads", services.ErrConfiguration)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: uploaded document is empty", services.ErrValidation)
	}
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.HasUpload {
		return nil, fmt.Errorf("%w: session %s was not created for an upload", services.ErrPreconditionFailed, id)
	}
	if sess.Status != registry.StatusCreated && sess.Status != registry.StatusIngestionFailed {
		return nil, fmt.Errorf("%w: cannot upload while session is %s", services.ErrPreconditionFailed, sess.Status)
	}

	name := "document-" + uuid.NewString()
	if ext := strings.TrimPrefix(path.Ext(filename), "."); ext != "" {
		name += "." + textutil.SanitizeToken(ext)
	}
	key := blobstore.Key(id, "upload", name)
	if err := m.blobs.Put(ctx, key, data); err != nil {
		return nil, err
	}
	if err := m.store.UpdateFields(ctx, id, registry.FieldUpdate{UploadKey: &key}); err != nil {
		_ = m.blobs.Delete(context.WithoutCancel(ctx), key)
		return nil, err
	}
	if sess.UploadKey != "" && sess.UploadKey != key {
		_ = m.blobs.Delete(ctx, sess.UploadKey)
	}
	sess.UploadKey = key

	if sess.Status == registry.StatusCreated {
		if _, err := m.startRun(ctx, sess, registry.RunBrief, token, sess.UserID, nil, m.runBrief); err != nil {
			return nil, err
		}
	}
	return m.store.Get(ctx, id)
}

// Retry starts a fresh brief run from a brief-run failure status, or from
// created when the session's first run never started.
func (m *Manager) Retry(ctx context.Context, id, actor, token string) (*registry.Run, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Status.IsBriefFailure() && !m.awaitingFirstRun(sess) {
		if active, err := m.store.ActiveRun(ctx, id, registry.RunBrief); err == nil && active != nil && active.AttemptToken == token {
			return active, nil
		}
		return nil, fmt.Errorf("%w: retry requires a failed brief run, session is %s", services.ErrPreconditionFailed, sess.Status)
	}
	return m.startRun(ctx, sess, registry.RunBrief, token, actor, nil, m.runBrief)
}

// UpdateBrief starts a revision run over the session's corrections.
func (m *Manager) UpdateBrief(ctx context.Context, id, actor, token string) (*registry.Run, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.startRun(ctx, sess, registry.RunRevision, token, actor, nil, m.runRevision)
}

// GenerateSynthesis starts a synthesis run over the latest brief.
func (m *Manager) GenerateSynthesis(ctx context.Context, id string, notes brief.SynthesisNotes, actor, token string) (*registry.Run, error) {
	if notes.IsEmpty() {
		return nil, fmt.Errorf("%w: synthesis requires interview notes", services.ErrValidation)
	}
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.CurrentBriefVersion == 0 {
		return nil, fmt.Errorf("%w: session %s has no brief yet", services.ErrPreconditionFailed, id)
	}
	return m.startRun(ctx, sess, registry.RunSynthesis, token, actor, func(rs *runState) {
		rs.notes = notes
	}, m.runSynthesis)
}

// SendPacket delivers the latest packet to the interviewee and marks the
// session packet_sent. No run is started.
func (m *Manager) SendPacket(ctx context.Context, id, actor string) (*registry.Session, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !registry.CanTransition(sess.Status, registry.StatusPacketSent) {
		return nil, fmt.Errorf("%w: cannot send packet while session is %s", services.ErrPreconditionFailed, sess.Status)
	}
	if sess.IntervieweeEmail == "" {
		return nil, fmt.Errorf("%w: session %s has no interviewee email", services.ErrValidation, id)
	}
	var packet brief.Packet
	version, err := m.artifacts.LatestJSON(ctx, id, artifact.KindPacket, &packet)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, fmt.Errorf("%w: session %s has no packet", services.ErrPreconditionFailed, id)
		}
		return nil, err
	}

	if err := m.deliverer.DeliverPacket(ctx, notifications.PacketDelivery{
		SessionID:     id,
		To:            sess.IntervieweeEmail,
		Subject:       fmt.Sprintf("Before our conversation: %s", sess.CompanyName),
		CompanyName:   sess.CompanyName,
		LeaderName:    sess.LeaderName,
		PacketVersion: version,
		FeedbackPath:  "/api/feedback/" + id,
		Packet:        packet,
	}); err != nil {
		return nil, fmt.Errorf("deliver packet: %w", err)
	}

	sentAt := time.Now().UTC()
	if err := m.store.Transition(ctx, id, sess.Status, registry.StatusPacketSent, registry.TransitionDetail{
		Actor:    actor,
		Action:   registry.ActionPacketSent,
		Metadata: map[string]any{"packet_version": version, "to": sess.IntervieweeEmail},
		Update:   registry.FieldUpdate{PacketSentAt: &sentAt},
	}); err != nil {
		return nil, err
	}
	m.audit(ctx, id, actor, registry.ActionConsentRecorded, map[string]any{
		"packet_version": version,
		"recipient":      sess.IntervieweeEmail,
		"opt_out_note":   packet.OptOutNote != "",
	})
	return m.store.Get(ctx, id)
}

// SubmitFeedback records interviewee corrections, or the opt-out.
func (m *Manager) SubmitFeedback(ctx context.Context, id string, fb Feedback) (*registry.Session, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if fb.OptOut {
		if sess.OptedOut {
			return sess, nil
		}
		reason := textutil.CollapseSpace(fb.OptOutReason)
		if err := m.store.SetOptOut(ctx, id, sess.Status, reason); err != nil {
			return nil, err
		}
		m.publish(ctx, notifications.EventOptedOut, notifications.Payload{"company": sess.CompanyName, "leader": sess.LeaderName})
		return m.store.Get(ctx, id)
	}

	if sess.OptedOut {
		return nil, fmt.Errorf("%w: session %s has opted out", services.ErrPreconditionFailed, id)
	}
	if !sess.Status.AcceptsFeedback() {
		return nil, fmt.Errorf("%w: feedback is not accepted while session is %s", services.ErrPreconditionFailed, sess.Status)
	}
	corrections, selected, err := parseFeedback(fb)
	if err != nil {
		return nil, err
	}
	if err := m.store.AddCorrections(ctx, id, sess.Status, corrections, selected); err != nil {
		return nil, err
	}
	m.publish(ctx, notifications.EventFeedbackReceived, notifications.Payload{"company": sess.CompanyName, "count": len(corrections)})
	return m.store.Get(ctx, id)
}

func parseFeedback(fb Feedback) ([]registry.Correction, []string, error) {
	if len(fb.Corrections) > maxCorrections {
		return nil, nil, fmt.Errorf("%w: at most %d corrections per submission", services.ErrValidation, maxCorrections)
	}
	var problems []string
	corrections := make([]registry.Correction, 0, len(fb.Corrections))
	for i, in := range fb.Corrections {
		original := strings.TrimSpace(in.Original)
		corrected := strings.TrimSpace(in.Corrected)
		category, ok := registry.ParseCategory(in.Category)
		switch {
		case original == "" || corrected == "":
			problems = append(problems, fmt.Sprintf("correction %d needs original and corrected text", i+1))
			continue
		case !ok:
			problems = append(problems, fmt.Sprintf("correction %d has unknown category %q", i+1, in.Category))
			continue
		case len(original) > maxCorrectionChars || len(corrected) > maxCorrectionChars:
			problems = append(problems, fmt.Sprintf("correction %d exceeds %d characters", i+1, maxCorrectionChars))
			continue
		}
		corrections = append(corrections, registry.Correction{
			Original:  original,
			Corrected: corrected,
			Category:  category,
			Note:      strings.TrimSpace(in.Note),
		})
	}
	var selected []string
	for _, id := range fb.SelectedQuestions {
		if id = strings.TrimSpace(id); id != "" {
			selected = append(selected, id)
		}
	}
	if len(selected) > maxSelectedQuestions {
		problems = append(problems, fmt.Sprintf("at most %d questions may be selected", maxSelectedQuestions))
	}
	if len(corrections) == 0 && len(selected) == 0 && len(problems) == 0 {
		problems = append(problems, "feedback needs at least one correction or selected question")
	}
	if len(problems) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", services.ErrValidation, strings.Join(problems, "; "))
	}
	return corrections, selected, nil
}

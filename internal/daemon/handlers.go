package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"briefsmith/internal/api"
	"briefsmith/internal/artifact"
	"briefsmith/internal/registry"
	"briefsmith/internal/services"
)

const (
	defaultListLimit  = 50
	defaultAuditLimit = 200
)

// ownedSession loads a session and hides sessions owned by another user
// behind NotFound.
func (s *apiServer) ownedSession(ctx context.Context, id string) (*registry.Session, error) {
	sess, err := s.pipeline.Session(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userFromContext(ctx) {
		return nil, fmt.Errorf("%w: session %s", services.ErrNotFound, id)
	}
	return sess, nil
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", services.ErrValidation, name)
	}
	return value, nil
}

func (s *apiServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := s.daemon.Status()
	checks := make([]api.CheckStatus, 0, len(status.Checks))
	for _, c := range status.Checks {
		checks = append(checks, api.CheckStatus{Name: c.Name, Passed: c.Passed, Detail: c.Detail})
	}
	writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		BlobBackend:  status.BlobBackend,
		AuthMode:     status.AuthMode,
		Pipeline:     api.FromPipelineSummary(status.Pipeline),
		Checks:       checks,
	})
}

func (s *apiServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	sess, err := s.pipeline.CreateSession(ctx, req.ToPipeline(userFromContext(ctx), idempotencyKey(r)))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSession(w, r, http.StatusCreated, sess)
}

func (s *apiServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := s.pipeline.ListSessions(r.Context(), userFromContext(r.Context()), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.SessionListResponse{Sessions: api.FromSummaries(items)})
}

func (s *apiServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.ownedSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSession(w, r, http.StatusOK, sess)
}

func (s *apiServer) writeSession(w http.ResponseWriter, r *http.Request, code int, sess *registry.Session) {
	view, err := s.pipeline.Status(r.Context(), sess.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, code, api.SessionResponse{Session: api.FromSession(sess), Status: api.FromStatusView(view)})
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := s.ownedSession(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: read upload: %v", services.ErrValidation, err))
		return
	}
	filename := r.URL.Query().Get("filename")
	updated, err := s.pipeline.Upload(ctx, sess.ID, filename, data, idempotencyKey(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSession(w, r, http.StatusOK, updated)
}

func (s *apiServer) handleArtifact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := s.ownedSession(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	version, err := queryInt(r, "version", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	kind := artifact.Kind(r.PathValue("kind"))
	content, resolved, err := s.pipeline.Artifact(ctx, sess.ID, kind, version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ArtifactResponse{
		SessionID: sess.ID,
		Kind:      string(kind),
		Version:   resolved,
		Content:   rawContent(content),
	})
}

// rawContent embeds JSON artifacts as-is and anything else as a JSON string.
func rawContent(content []byte) json.RawMessage {
	if json.Valid(content) {
		return json.RawMessage(content)
	}
	encoded, _ := json.Marshal(string(content))
	return encoded
}

func (s *apiServer) handleArtifactVersions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := s.ownedSession(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	records, err := s.pipeline.ArtifactVersions(ctx, sess.ID, artifact.Kind(r.PathValue("kind")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ArtifactVersionsResponse{Versions: api.FromArtifactRecords(records)})
}

func (s *apiServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := s.ownedSession(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultAuditLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.pipeline.AuditTrail(ctx, sess.ID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.AuditResponse{Entries: api.FromAuditEntries(entries)})
}

func (s *apiServer) handleSendPacket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := s.ownedSession(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.pipeline.SendPacket(ctx, sess.ID, userFromContext(ctx))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSession(w, r, http.StatusOK, updated)
}

func (s *apiServer) handleUpdateBrief(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, r, func(ctx context.Context, id string) (*registry.Run, error) {
		return s.pipeline.UpdateBrief(ctx, id, userFromContext(ctx), idempotencyKey(r))
	})
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, r, func(ctx context.Context, id string) (*registry.Run, error) {
		return s.pipeline.Retry(ctx, id, userFromContext(ctx), idempotencyKey(r))
	})
}

func (s *apiServer) handleSynthesis(w http.ResponseWriter, r *http.Request) {
	var req api.SynthesisRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.trigger(w, r, func(ctx context.Context, id string) (*registry.Run, error) {
		return s.pipeline.GenerateSynthesis(ctx, id, req.ToNotes(), userFromContext(ctx), idempotencyKey(r))
	})
}

// trigger runs a run-starting operation against an owned session and
// answers 202 with the reserved run.
func (s *apiServer) trigger(w http.ResponseWriter, r *http.Request, start func(context.Context, string) (*registry.Run, error)) {
	ctx := r.Context()
	sess, err := s.ownedSession(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	run, err := start(ctx, sess.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.pipeline.Status(ctx, sess.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, api.TriggerResponse{
		SessionID: sess.ID,
		Status:    string(view.Status),
		Run:       api.FromRun(run),
	})
}

func (s *apiServer) handleGetPacket(w http.ResponseWriter, r *http.Request) {
	sess, packet, version, err := s.pipeline.SentPacket(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.PacketResponse{
		SessionID: sess.ID,
		Version:   version,
		Status:    string(sess.Status),
		Packet:    packet,
	})
}

func (s *apiServer) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req api.FeedbackRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	sess, err := s.pipeline.SubmitFeedback(r.Context(), r.PathValue("id"), req.ToPipeline())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	message := "Thank you. Your corrections were received."
	if req.OptOut {
		message = "You have opted out. Nothing further will be prepared from your answers."
	}
	writeJSON(w, http.StatusOK, api.FeedbackResponse{
		Message:             message,
		Status:              string(sess.Status),
		CorrectionsReceived: len(req.Corrections),
		QuestionsSelected:   len(req.SelectedQuestions),
	})
}

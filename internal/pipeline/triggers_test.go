package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"briefsmith/internal/artifact"
	"briefsmith/internal/brief"
	"briefsmith/internal/generation"
	"briefsmith/internal/pipeline"
	"briefsmith/internal/registry"
	"briefsmith/internal/services"
)

func TestSendPacketMarksSessionSent(t *testing.T) {
	h := newHarness(t)
	sess := h.ready(t)
	ctx := context.Background()

	got, err := h.mgr.SendPacket(ctx, sess.ID, "tester")
	if err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	if got.Status != registry.StatusPacketSent || got.PacketSentAt == nil {
		t.Fatalf("session after send = %s sent_at=%v", got.Status, got.PacketSentAt)
	}
	if len(h.deliverer.deliveries) != 1 {
		t.Fatalf("deliveries = %d", len(h.deliverer.deliveries))
	}
	delivery := h.deliverer.deliveries[0]
	if delivery.To != "dana@acme.example" || delivery.PacketVersion != 1 || len(delivery.Packet.QuestionMenu) == 0 {
		t.Fatalf("delivery = %+v", delivery)
	}
	actions := h.auditActions(t, sess.ID)
	if countOf(actions, registry.ActionPacketSent) != 1 || countOf(actions, registry.ActionConsentRecorded) != 1 {
		t.Fatalf("audit trail = %v", actions)
	}

	if _, err := h.mgr.SendPacket(ctx, sess.ID, "tester"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if len(h.deliverer.deliveries) != 2 {
		t.Fatal("resend should deliver again")
	}
}

func TestSendPacketPreconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pending := storedSession(t, h)
	if _, err := h.mgr.SendPacket(ctx, pending.ID, "tester"); !errors.Is(err, services.ErrPreconditionFailed) {
		t.Fatalf("send before brief: %v", err)
	}

	sess := h.ready(t)
	h.deliverer.err = services.Wrap(services.ErrTransient, "", "deliver packet", "webhook unavailable", nil)
	if _, err := h.mgr.SendPacket(ctx, sess.ID, "tester"); !services.IsTransient(err) {
		t.Fatalf("expected transient delivery error, got %v", err)
	}
	h.requireStatus(t, sess.ID, registry.StatusBriefReady)
}

func TestGenerateSynthesis(t *testing.T) {
	h := newHarness(t)
	sess := h.ready(t)
	ctx := context.Background()

	if _, err := h.mgr.GenerateSynthesis(ctx, sess.ID, brief.SynthesisNotes{}, "tester", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("empty notes: %v", err)
	}
	notes := brief.SynthesisNotes{KeyInsights: []string{"Driver hiring caps growth"}, RawNotes: "Long call."}
	if _, err := h.mgr.GenerateSynthesis(ctx, sess.ID, notes, "tester", "synth-1"); err != nil {
		t.Fatalf("GenerateSynthesis: %v", err)
	}
	h.mgr.Wait()
	h.requireStatus(t, sess.ID, registry.StatusSynthesisReady)

	var out brief.Synthesis
	version, err := h.artifacts.LatestJSON(ctx, sess.ID, artifact.KindSynthesis, &out)
	if err != nil || version != 1 {
		t.Fatalf("synthesis v%d: %v", version, err)
	}
	if out.BriefVersion != 1 || len(out.Notes.KeyInsights) != 1 {
		t.Fatalf("synthesis = %+v", out)
	}

	if _, err := h.mgr.GenerateSynthesis(ctx, sess.ID, notes, "tester", "synth-2"); err != nil {
		t.Fatalf("second synthesis: %v", err)
	}
	h.mgr.Wait()
	versions, err := h.mgr.ArtifactVersions(ctx, sess.ID, artifact.KindSynthesis)
	if err != nil || len(versions) != 2 {
		t.Fatalf("synthesis versions = %d (%v)", len(versions), err)
	}
}

func TestGenerateSynthesisFailureRoutesToSynthesisFailed(t *testing.T) {
	h := newHarness(t)
	h.gen.synthesize = func(context.Context, generation.SynthesisInput) (brief.Synthesis, error) {
		return brief.Synthesis{}, services.Wrap(services.ErrPermanent, "synthesizing", "synthesize", "model refused", nil)
	}
	sess := h.ready(t)
	notes := brief.SynthesisNotes{RawNotes: "Short call."}
	if _, err := h.mgr.GenerateSynthesis(context.Background(), sess.ID, notes, "tester", ""); err != nil {
		t.Fatalf("GenerateSynthesis: %v", err)
	}
	h.mgr.Wait()
	got := h.requireStatus(t, sess.ID, registry.StatusSynthesisFailed)
	if got.ErrorMessage == "" {
		t.Fatal("expected an error message")
	}
}

func TestArtifactQueries(t *testing.T) {
	h := newHarness(t, withScores(40, 90))
	sess := h.ready(t)
	ctx := context.Background()

	latest, version, err := h.mgr.Artifact(ctx, sess.ID, artifact.KindBrief, 0)
	if err != nil || version != 2 || len(latest) == 0 {
		t.Fatalf("latest brief v%d: %v", version, err)
	}
	first, version, err := h.mgr.Artifact(ctx, sess.ID, artifact.KindBrief, 1)
	if err != nil || version != 1 || len(first) == 0 {
		t.Fatalf("brief v1: %v", err)
	}
	if _, _, err := h.mgr.Artifact(ctx, sess.ID, artifact.KindBrief, 3); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing version: %v", err)
	}
	if _, _, err := h.mgr.Artifact(ctx, sess.ID, artifact.Kind("draft"), 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("unknown kind: %v", err)
	}

	view, err := h.mgr.Status(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.LatestVersions[artifact.KindBrief] != 2 || view.ActiveRun != nil {
		t.Fatalf("status view = %+v", view)
	}
	list, err := h.mgr.ListSessions(ctx, "tester", 10)
	if err != nil || len(list) != 1 || list[0].ID != sess.ID {
		t.Fatalf("ListSessions = %+v (%v)", list, err)
	}
	if _, err := h.mgr.AuditTrail(ctx, "missing", 0); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("audit for missing session: %v", err)
	}
}

func storedSession(t *testing.T, h *harness) *registry.Session {
	t.Helper()
	sess, err := h.reg.Create(context.Background(), registry.NewSession{
		UserID:           "tester",
		CompanyName:      "Globex",
		LeaderName:       "Hank Scorpio",
		IntervieweeEmail: "hank@globex.example",
		SourceURLs:       []string{"https://globex.example"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return sess
}

func TestRetryStartsSessionWhoseFirstRunNeverStarted(t *testing.T) {
	h := newHarness(t)
	sess := storedSession(t, h)
	ctx := context.Background()

	run, err := h.mgr.Retry(ctx, sess.ID, "tester", "retry-created")
	if err != nil {
		t.Fatalf("Retry from created: %v", err)
	}
	if run.Kind != registry.RunBrief || run.AttemptToken != "retry-created" {
		t.Fatalf("unexpected run %+v", run)
	}
	h.mgr.Wait()
	h.requireStatus(t, sess.ID, registry.StatusBriefReady)

	waiting, err := h.reg.Create(ctx, registry.NewSession{
		UserID:      "tester",
		CompanyName: "Initech",
		LeaderName:  "Bill Lumbergh",
		HasUpload:   true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.mgr.Retry(ctx, waiting.ID, "tester", ""); !errors.Is(err, services.ErrPreconditionFailed) {
		t.Fatalf("retry before upload: %v", err)
	}
}

func TestCreateSessionIsIdempotentPerToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := pipeline.CreateRequest{
		UserID:           "tester",
		CompanyName:      "Acme Freight",
		LeaderName:       "Dana Leader",
		IntervieweeEmail: "dana@acme.example",
		SourceURLs:       []string{"https://acme.example/about"},
		AttemptToken:     "create-1",
	}

	first, err := h.mgr.CreateSession(ctx, req)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	h.mgr.Wait()
	again, err := h.mgr.CreateSession(ctx, req)
	if err != nil {
		t.Fatalf("replayed CreateSession: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("replay created session %s, want %s", again.ID, first.ID)
	}
	if again.Status != registry.StatusBriefReady {
		t.Fatalf("replayed session status = %s", again.Status)
	}
	h.mgr.Wait()
	if n := len(h.gen.generations()); n != 1 {
		t.Fatalf("brief generated %d times", n)
	}

	other := req
	other.UserID = "someone-else"
	separate, err := h.mgr.CreateSession(ctx, other)
	if err != nil {
		t.Fatalf("CreateSession for another user: %v", err)
	}
	h.mgr.Wait()
	if separate.ID == first.ID {
		t.Fatal("token scoped per user should not collide across users")
	}
	list, err := h.mgr.ListSessions(ctx, "tester", 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListSessions = %+v (%v)", list, err)
	}
}

func TestCreateReplayStartsStrandedSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stranded, err := h.reg.Create(ctx, registry.NewSession{
		UserID:      "tester",
		CompanyName: "Acme Freight",
		LeaderName:  "Dana Leader",
		SourceURLs:  []string{"https://acme.example/about"},
		CreateToken: "create-2",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := h.mgr.CreateSession(ctx, pipeline.CreateRequest{
		UserID:       "tester",
		CompanyName:  "Acme Freight",
		LeaderName:   "Dana Leader",
		SourceURLs:   []string{"https://acme.example/about"},
		AttemptToken: "create-2",
	})
	if err != nil {
		t.Fatalf("CreateSession replay: %v", err)
	}
	if got.ID != stranded.ID {
		t.Fatalf("replay returned %s, want %s", got.ID, stranded.ID)
	}
	h.mgr.Wait()
	h.requireStatus(t, stranded.ID, registry.StatusBriefReady)
}

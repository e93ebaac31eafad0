package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"briefsmith/internal/api"
	"briefsmith/internal/artifact"
	"briefsmith/internal/blobstore"
	"briefsmith/internal/brief"
	"briefsmith/internal/config"
	"briefsmith/internal/daemon"
	"briefsmith/internal/generation"
	"briefsmith/internal/ingest"
	"briefsmith/internal/notifications"
	"briefsmith/internal/pipeline"
	"briefsmith/internal/registry"
	"briefsmith/internal/testsupport"
)

type testEnv struct {
	cfg    *config.Config
	reg    *registry.Store
	mgr    *pipeline.Manager
	daemon *daemon.Daemon
	server *httptest.Server
}

func newTestEnv(t *testing.T, gen stubGenerator, opts ...testsupport.ConfigOption) *testEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.LLM.APIKey = ""
	reg := testsupport.MustOpenRegistry(t, cfg)
	blobs, err := blobstore.NewFilesystem(cfg.Paths.BlobDir)
	if err != nil {
		t.Fatalf("blobstore.NewFilesystem: %v", err)
	}
	mgr, err := pipeline.NewManager(cfg, pipeline.Dependencies{
		Store:     reg,
		Artifacts: artifact.New(reg, blobs),
		Blobs:     blobs,
		Ingester:  stubIngester{},
		Generator: gen,
		Deliverer: nopDeliverer{},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(mgr.Stop)
	d, err := daemon.New(cfg, reg, blobs, mgr, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	server := httptest.NewServer(d.Handler())
	t.Cleanup(server.Close)
	return &testEnv{cfg: cfg, reg: reg, mgr: mgr, daemon: d, server: server}
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func (e *testEnv) expect(t *testing.T, method, path, bearer string, body any, wantStatus int, out any, headers ...string) {
	t.Helper()
	resp, data := e.do(t, method, path, bearer, body, headers...)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status %d, want %d (%s)", method, path, resp.StatusCode, wantStatus, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
	}
}

func createBody() api.CreateSessionRequest {
	return api.CreateSessionRequest{
		CompanyName:      "acme freight",
		LeaderName:       "Dana Leader",
		IntervieweeEmail: "dana@acme.example",
		SourceURLs:       []string{"https://acme.example/about"},
	}
}

func TestDaemonStartStop(t *testing.T) {
	env := newTestEnv(t, stubGenerator{})
	ctx := context.Background()

	if err := env.daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if env.daemon.Addr() == "" {
		t.Fatal("expected api listener address")
	}
	status := env.daemon.Status()
	if !status.Running || status.AuthMode != "none" {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(status.Checks) == 0 {
		t.Fatal("expected preflight results")
	}
	if err := env.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	other, err := daemon.New(env.cfg, env.reg, nil, env.mgr, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := other.Start(ctx); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict, got %v", err)
	}

	env.daemon.Stop()
	if env.daemon.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, stubGenerator{})

	var created api.SessionResponse
	env.expect(t, http.MethodPost, "/api/sessions", "", createBody(), http.StatusCreated, &created)
	if created.Session.CompanyName != "Acme Freight" {
		t.Fatalf("company = %q", created.Session.CompanyName)
	}
	id := created.Session.ID
	env.mgr.Wait()

	var got api.SessionResponse
	env.expect(t, http.MethodGet, "/api/sessions/"+id, "", nil, http.StatusOK, &got)
	if got.Status.Status != string(registry.StatusBriefReady) || got.Status.CurrentBriefVersion != 1 {
		t.Fatalf("unexpected status view %+v", got.Status)
	}

	var art api.ArtifactResponse
	env.expect(t, http.MethodGet, "/api/sessions/"+id+"/artifacts/brief", "", nil, http.StatusOK, &art)
	var b brief.Brief
	if err := json.Unmarshal(art.Content, &b); err != nil || art.Version != 1 {
		t.Fatalf("brief artifact v%d: %v", art.Version, err)
	}

	env.expect(t, http.MethodGet, "/api/feedback/"+id, "", nil, http.StatusNotFound, nil)
	env.expect(t, http.MethodPost, "/api/sessions/"+id+"/packet", "", nil, http.StatusOK, &got)
	if got.Session.Status != string(registry.StatusPacketSent) {
		t.Fatalf("status after packet = %s", got.Session.Status)
	}

	var packet api.PacketResponse
	env.expect(t, http.MethodGet, "/api/feedback/"+id, "", nil, http.StatusOK, &packet)
	if packet.Packet.CompanyName != "Acme Freight" {
		t.Fatalf("packet company = %q", packet.Packet.CompanyName)
	}

	var ack api.FeedbackResponse
	env.expect(t, http.MethodPost, "/api/feedback/"+id, "", api.FeedbackRequest{
		Corrections: []api.CorrectionInput{{
			Original:  "The fleet has 200 trucks",
			Corrected: "The fleet has 350 trucks",
			Category:  "outdated",
		}},
		SelectedQuestions: []string{"q2"},
	}, http.StatusOK, &ack)
	if ack.Status != string(registry.StatusFeedbackReceived) || ack.CorrectionsReceived != 1 {
		t.Fatalf("unexpected ack %+v", ack)
	}

	var trig api.TriggerResponse
	env.expect(t, http.MethodPost, "/api/sessions/"+id+"/update-brief", "", nil, http.StatusAccepted, &trig, "Idempotency-Key", "update-1")
	if trig.Run == nil || trig.Run.AttemptToken != "update-1" {
		t.Fatalf("unexpected trigger response %+v", trig)
	}
	env.mgr.Wait()

	env.expect(t, http.MethodGet, "/api/sessions/"+id, "", nil, http.StatusOK, &got)
	if got.Status.Status != string(registry.StatusBriefUpdated) || got.Status.CurrentBriefVersion != 2 {
		t.Fatalf("unexpected status after revision %+v", got.Status)
	}

	var versions api.ArtifactVersionsResponse
	env.expect(t, http.MethodGet, "/api/sessions/"+id+"/artifacts/brief/versions", "", nil, http.StatusOK, &versions)
	if len(versions.Versions) != 2 {
		t.Fatalf("brief versions = %d, want 2", len(versions.Versions))
	}

	var audit api.AuditResponse
	env.expect(t, http.MethodGet, "/api/sessions/"+id+"/audit", "", nil, http.StatusOK, &audit)
	seen := map[string]bool{}
	for _, entry := range audit.Entries {
		seen[entry.Action] = true
	}
	for _, action := range []string{registry.ActionSessionCreated, registry.ActionPacketSent, registry.ActionCorrectionsSubmitted, registry.ActionBriefUpdated} {
		if !seen[action] {
			t.Fatalf("audit trail missing %s", action)
		}
	}

	var list api.SessionListResponse
	env.expect(t, http.MethodGet, "/api/sessions", "", nil, http.StatusOK, &list)
	if len(list.Sessions) != 1 || list.Sessions[0].ID != id {
		t.Fatalf("unexpected list %+v", list.Sessions)
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, stubGenerator{})

	var created api.SessionResponse
	env.expect(t, http.MethodPost, "/api/sessions", "", createBody(), http.StatusCreated, &created)
	env.mgr.Wait()
	id := created.Session.ID

	invalid := createBody()
	invalid.SourceURLs = []string{"ftp://acme.example"}
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
		code   string
	}{
		{"invalid create", http.MethodPost, "/api/sessions", invalid, http.StatusBadRequest, "validation"},
		{"unknown field", http.MethodPost, "/api/sessions", map[string]any{"company": "x"}, http.StatusBadRequest, "validation"},
		{"missing session", http.MethodGet, "/api/sessions/nope", nil, http.StatusNotFound, "not_found"},
		{"unknown artifact kind", http.MethodGet, "/api/sessions/" + id + "/artifacts/memo", nil, http.StatusBadRequest, "validation"},
		{"missing version", http.MethodGet, "/api/sessions/" + id + "/artifacts/brief?version=9", nil, http.StatusNotFound, "not_found"},
		{"bad version", http.MethodGet, "/api/sessions/" + id + "/artifacts/brief?version=x", nil, http.StatusBadRequest, "validation"},
		{"update before feedback", http.MethodPost, "/api/sessions/" + id + "/update-brief", nil, http.StatusPreconditionFailed, "precondition_failed"},
		{"retry healthy session", http.MethodPost, "/api/sessions/" + id + "/retry", nil, http.StatusPreconditionFailed, "precondition_failed"},
		{"empty synthesis notes", http.MethodPost, "/api/sessions/" + id + "/synthesis", api.SynthesisRequest{}, http.StatusBadRequest, "validation"},
		{"opt out before packet", http.MethodPost, "/api/feedback/" + id, api.FeedbackRequest{OptOut: true}, http.StatusPreconditionFailed, "precondition_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body api.ErrorResponse
			env.expect(t, tt.method, tt.path, "", tt.body, tt.want, &body)
			if body.Code != tt.code || body.Error == "" {
				t.Fatalf("unexpected error body %+v", body)
			}
		})
	}
}

func TestConcurrentTriggerConflicts(t *testing.T) {
	gate := make(chan struct{})
	env := newTestEnv(t, stubGenerator{revisionGate: gate})
	mgr := env.mgr

	var created api.SessionResponse
	env.expect(t, http.MethodPost, "/api/sessions", "", createBody(), http.StatusCreated, &created)
	mgr.Wait()
	id := created.Session.ID
	env.expect(t, http.MethodPost, "/api/sessions/"+id+"/packet", "", nil, http.StatusOK, nil)
	env.expect(t, http.MethodPost, "/api/feedback/"+id, "", api.FeedbackRequest{
		Corrections: []api.CorrectionInput{{Original: "The fleet has 200 trucks", Corrected: "The fleet has 350 trucks"}},
	}, http.StatusOK, nil)

	env.expect(t, http.MethodPost, "/api/sessions/"+id+"/update-brief", "", nil, http.StatusAccepted, nil, "Idempotency-Key", "first")
	env.expect(t, http.MethodPost, "/api/sessions/"+id+"/update-brief", "", nil, http.StatusAccepted, nil, "Idempotency-Key", "first")
	var conflict api.ErrorResponse
	env.expect(t, http.MethodPost, "/api/sessions/"+id+"/update-brief", "", nil, http.StatusConflict, &conflict, "Idempotency-Key", "second")
	if conflict.Code != "conflict" {
		t.Fatalf("unexpected conflict body %+v", conflict)
	}
	close(gate)
	mgr.Wait()
}

func TestUploadStartsBriefRun(t *testing.T) {
	env := newTestEnv(t, stubGenerator{})
	body := createBody()
	body.SourceURLs = nil
	body.HasUpload = true

	var created api.SessionResponse
	env.expect(t, http.MethodPost, "/api/sessions", "", body, http.StatusCreated, &created)
	if created.Session.Status != string(registry.StatusCreated) {
		t.Fatalf("status before upload = %s", created.Session.Status)
	}
	id := created.Session.ID

	req, err := http.NewRequest(http.MethodPut, env.server.URL+"/api/sessions/"+id+"/upload?filename=notes.txt", strings.NewReader("Acme runs 350 trucks."))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	env.mgr.Wait()

	var got api.SessionResponse
	env.expect(t, http.MethodGet, "/api/sessions/"+id, "", nil, http.StatusOK, &got)
	if got.Status.Status != string(registry.StatusBriefReady) || !got.Session.Uploaded {
		t.Fatalf("unexpected session after upload %+v", got)
	}
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t, stubGenerator{},
		testsupport.WithAPIToken("static-token"),
		testsupport.WithJWTSecret("jwt-secret", "briefsmith-test"),
	)

	env.expect(t, http.MethodGet, "/api/sessions", "", nil, http.StatusUnauthorized, nil)
	env.expect(t, http.MethodGet, "/api/sessions", "wrong", nil, http.StatusUnauthorized, nil)
	env.expect(t, http.MethodGet, "/api/sessions", "static-token", nil, http.StatusOK, nil)

	alice, err := daemon.IssueToken("jwt-secret", "briefsmith-test", "alice", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	bob, err := daemon.IssueToken("jwt-secret", "briefsmith-test", "bob", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	foreign, err := daemon.IssueToken("jwt-secret", "someone-else", "alice", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	expired, err := daemon.IssueToken("jwt-secret", "briefsmith-test", "alice", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	env.expect(t, http.MethodGet, "/api/sessions", foreign, nil, http.StatusUnauthorized, nil)
	env.expect(t, http.MethodGet, "/api/sessions", expired, nil, http.StatusUnauthorized, nil)

	var created api.SessionResponse
	env.expect(t, http.MethodPost, "/api/sessions", alice, createBody(), http.StatusCreated, &created)
	env.mgr.Wait()
	id := created.Session.ID

	env.expect(t, http.MethodGet, "/api/sessions/"+id, alice, nil, http.StatusOK, nil)
	env.expect(t, http.MethodGet, "/api/sessions/"+id, bob, nil, http.StatusNotFound, nil)
	env.expect(t, http.MethodPost, "/api/sessions/"+id+"/packet", bob, nil, http.StatusNotFound, nil)

	var list api.SessionListResponse
	env.expect(t, http.MethodGet, "/api/sessions", bob, nil, http.StatusOK, &list)
	if len(list.Sessions) != 0 {
		t.Fatalf("bob sees %d sessions", len(list.Sessions))
	}

	// The interviewee form never needs credentials.
	env.expect(t, http.MethodGet, "/api/feedback/"+id, "", nil, http.StatusNotFound, nil)
}

type stubIngester struct{}

func (stubIngester) Ingest(_ context.Context, req ingest.Request) (brief.IngestResult, error) {
	result := brief.IngestResult{}
	for _, u := range req.URLs {
		result.Sources = append(result.Sources, brief.SourceResult{Kind: brief.SourceURL, Location: u, CharCount: 80})
		result.Chunks = append(result.Chunks, "[Source: "+u+"]\nAcme operates a regional freight network.")
	}
	if req.UploadKey != "" {
		result.Sources = append(result.Sources, brief.SourceResult{Kind: brief.SourceUpload, Location: "upload", CharCount: 20})
		result.Chunks = append(result.Chunks, "[Source: upload]\nAcme runs 350 trucks.")
	}
	return result, nil
}

// stubGenerator returns the sample brief. When revisionGate is set,
// revisions block until it is closed.
type stubGenerator struct {
	revisionGate chan struct{}
}

func (stubGenerator) GenerateBrief(_ context.Context, in generation.BriefInput) (generation.Draft, error) {
	b := testsupport.SampleBrief(in.CompanyName)
	return generation.Draft{Brief: b, Packet: brief.Packet{
		CompanyName:   in.CompanyName,
		WhatWeLearned: b.ExecutiveSummary,
		QuestionMenu:  brief.PacketMenu(b),
	}}, nil
}

func (g stubGenerator) ReviseBrief(ctx context.Context, in generation.RevisionInput) (brief.Brief, error) {
	if g.revisionGate != nil {
		select {
		case <-g.revisionGate:
		case <-ctx.Done():
			return brief.Brief{}, ctx.Err()
		}
	}
	out := in.Brief
	out.SelectedQuestionIDs = in.Request.SelectedQuestions
	return out, nil
}

func (stubGenerator) Synthesize(_ context.Context, in generation.SynthesisInput) (brief.Synthesis, error) {
	return brief.Synthesis{GeneratedAt: time.Now().UTC(), BriefVersion: in.BriefVersion, Company: brief.CompanyHeader{Name: in.CompanyName}, Summary: "ok", Notes: in.Notes}, nil
}

type nopDeliverer struct{}

func (nopDeliverer) DeliverPacket(context.Context, notifications.PacketDelivery) error { return nil }

func TestCreateSessionReplaysIdempotencyKey(t *testing.T) {
	env := newTestEnv(t, stubGenerator{})

	var first, second api.SessionResponse
	env.expect(t, http.MethodPost, "/api/sessions", "", createBody(), http.StatusCreated, &first, "Idempotency-Key", "create-1")
	env.mgr.Wait()
	env.expect(t, http.MethodPost, "/api/sessions", "", createBody(), http.StatusCreated, &second, "Idempotency-Key", "create-1")
	if second.Session.ID != first.Session.ID {
		t.Fatalf("retried create made session %s, want %s", second.Session.ID, first.Session.ID)
	}

	var list api.SessionListResponse
	env.expect(t, http.MethodGet, "/api/sessions", "", nil, http.StatusOK, &list)
	if len(list.Sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(list.Sessions))
	}
}

package pipeline_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"briefsmith/internal/artifact"
	"briefsmith/internal/blobstore"
	"briefsmith/internal/brief"
	"briefsmith/internal/config"
	"briefsmith/internal/generation"
	"briefsmith/internal/ingest"
	"briefsmith/internal/notifications"
	"briefsmith/internal/pipeline"
	"briefsmith/internal/quality"
	"briefsmith/internal/registry"
	"briefsmith/internal/testsupport"
)

type harness struct {
	cfg       *config.Config
	reg       *registry.Store
	artifacts *artifact.Store
	mgr       *pipeline.Manager
	gen       *fakeGenerator
	notifier  *recordingNotifier
	deliverer *recordingDeliverer
	blobs     *hookedBlobs
}

type harnessSetup struct {
	cfg  *config.Config
	deps pipeline.Dependencies
}

type harnessOption func(*harnessSetup)

func withIngester(ing pipeline.Ingester) harnessOption {
	return func(s *harnessSetup) { s.deps.Ingester = ing }
}

func withScores(scores ...int) harnessOption {
	return func(s *harnessSetup) { s.deps.Gate = newScriptedGate(s.cfg.Pipeline.QualityThreshold, scores...) }
}

func withConfig(fn func(*config.Config)) harnessOption {
	return func(s *harnessSetup) { fn(s.cfg) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	reg := testsupport.MustOpenRegistry(t, cfg)
	fs, err := blobstore.NewFilesystem(cfg.Paths.BlobDir)
	if err != nil {
		t.Fatalf("blobstore.NewFilesystem: %v", err)
	}
	blobs := &hookedBlobs{Store: fs}
	h := &harness{
		blobs:     blobs,
		cfg:       cfg,
		reg:       reg,
		artifacts: artifact.New(reg, blobs),
		gen:       &fakeGenerator{},
		notifier:  &recordingNotifier{},
		deliverer: &recordingDeliverer{},
	}
	setup := &harnessSetup{cfg: cfg, deps: pipeline.Dependencies{
		Store:     reg,
		Artifacts: h.artifacts,
		Blobs:     blobs,
		Ingester:  staticIngester{},
		Generator: h.gen,
		Notifier:  h.notifier,
		Deliverer: h.deliverer,
	}}
	for _, opt := range opts {
		opt(setup)
	}
	mgr, err := pipeline.NewManager(cfg, setup.deps)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(mgr.Stop)
	h.mgr = mgr
	return h
}

func (h *harness) create(t *testing.T, urls ...string) *registry.Session {
	t.Helper()
	if len(urls) == 0 {
		urls = []string{"https://acme.example/about"}
	}
	sess, err := h.mgr.CreateSession(context.Background(), pipeline.CreateRequest{
		UserID:           "tester",
		CompanyName:      "Acme Freight",
		LeaderName:       "Dana Leader",
		IntervieweeEmail: "dana@acme.example",
		SourceURLs:       urls,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	h.mgr.Wait()
	return sess
}

// ready creates a session and drives it to brief_ready.
func (h *harness) ready(t *testing.T) *registry.Session {
	t.Helper()
	sess := h.create(t)
	h.requireStatus(t, sess.ID, registry.StatusBriefReady)
	return sess
}

// sent drives a session to packet_sent.
func (h *harness) sent(t *testing.T) *registry.Session {
	t.Helper()
	sess := h.ready(t)
	if _, err := h.mgr.SendPacket(context.Background(), sess.ID, "tester"); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	h.requireStatus(t, sess.ID, registry.StatusPacketSent)
	return sess
}

// withFeedback drives a session to feedback_received with one correction.
func (h *harness) withFeedback(t *testing.T) *registry.Session {
	t.Helper()
	sess := h.sent(t)
	if _, err := h.mgr.SubmitFeedback(context.Background(), sess.ID, pipeline.Feedback{
		Corrections: []pipeline.CorrectionInput{{
			Original:  "The fleet has 200 trucks",
			Corrected: "The fleet has 350 trucks",
			Category:  "outdated",
		}},
		SelectedQuestions: []string{"q4", "q2"},
	}); err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
	h.requireStatus(t, sess.ID, registry.StatusFeedbackReceived)
	return sess
}

func (h *harness) session(t *testing.T, id string) *registry.Session {
	t.Helper()
	sess, err := h.reg.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return sess
}

func (h *harness) requireStatus(t *testing.T, id string, want registry.Status) *registry.Session {
	t.Helper()
	sess := h.session(t, id)
	if sess.Status != want {
		t.Fatalf("status = %s, want %s (error %q)", sess.Status, want, sess.ErrorMessage)
	}
	return sess
}

func (h *harness) auditActions(t *testing.T, id string) []string {
	t.Helper()
	entries, err := h.reg.AuditTrail(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("AuditTrail: %v", err)
	}
	actions := make([]string, 0, len(entries))
	for _, entry := range entries {
		actions = append(actions, entry.Action)
	}
	return actions
}

func countOf(values []string, want string) int {
	n := 0
	for _, v := range values {
		if v == want {
			n++
		}
	}
	return n
}

// hookedBlobs runs onGet, when set, before every blob read.
type hookedBlobs struct {
	blobstore.Store
	mu    sync.Mutex
	onGet func(ctx context.Context, key string) error
}

func (b *hookedBlobs) setOnGet(fn func(ctx context.Context, key string) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onGet = fn
}

func (b *hookedBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	hook := b.onGet
	b.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, key); err != nil {
			return nil, err
		}
	}
	return b.Store.Get(ctx, key)
}

type ingesterFunc func(ctx context.Context, req ingest.Request) (brief.IngestResult, error)

func (f ingesterFunc) Ingest(ctx context.Context, req ingest.Request) (brief.IngestResult, error) {
	return f(ctx, req)
}

type staticIngester struct {
	result brief.IngestResult
	err    error
}

func (s staticIngester) Ingest(_ context.Context, req ingest.Request) (brief.IngestResult, error) {
	if s.err != nil || len(s.result.Sources) > 0 {
		return s.result, s.err
	}
	result := brief.IngestResult{}
	for _, u := range req.URLs {
		result.Sources = append(result.Sources, brief.SourceResult{Kind: brief.SourceURL, Location: u, CharCount: 120})
		result.Chunks = append(result.Chunks, "[Source: "+u+"]\nAcme operates a regional freight network.")
	}
	return result, nil
}

// fakeGenerator returns the sample brief. revise and synthesize, when set,
// replace the default revision and synthesis behavior.
type fakeGenerator struct {
	mu          sync.Mutex
	briefInputs []generation.BriefInput
	revisions   []generation.RevisionInput
	generateErr error
	revise      func(ctx context.Context, in generation.RevisionInput) (brief.Brief, error)
	synthesize  func(ctx context.Context, in generation.SynthesisInput) (brief.Synthesis, error)
}

func (g *fakeGenerator) GenerateBrief(_ context.Context, in generation.BriefInput) (generation.Draft, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.briefInputs = append(g.briefInputs, in)
	if g.generateErr != nil {
		return generation.Draft{}, g.generateErr
	}
	b := testsupport.SampleBrief(in.CompanyName)
	return generation.Draft{Brief: b, Packet: brief.Packet{
		CompanyName:   in.CompanyName,
		WhatWeLearned: b.ExecutiveSummary,
		QuestionMenu:  brief.PacketMenu(b),
		OptOutNote:    "You can decline at any time.",
	}}, nil
}

func (g *fakeGenerator) ReviseBrief(ctx context.Context, in generation.RevisionInput) (brief.Brief, error) {
	g.mu.Lock()
	g.revisions = append(g.revisions, in)
	revise := g.revise
	g.mu.Unlock()
	if revise != nil {
		return revise(ctx, in)
	}
	out := in.Brief
	out.KeyPoints = append([]brief.KeyPoint(nil), in.Brief.KeyPoints...)
	for i := range out.KeyPoints {
		for _, change := range in.Request.Changes {
			if out.KeyPoints[i].Assertion == change.Original {
				out.KeyPoints[i].Assertion = change.Corrected
			}
		}
	}
	out.SelectedQuestionIDs = in.Request.SelectedQuestions
	return out, nil
}

func (g *fakeGenerator) Synthesize(ctx context.Context, in generation.SynthesisInput) (brief.Synthesis, error) {
	if g.synthesize != nil {
		return g.synthesize(ctx, in)
	}
	return brief.Synthesis{
		GeneratedAt:  time.Now().UTC(),
		BriefVersion: in.BriefVersion,
		Company:      brief.CompanyHeader{Name: in.CompanyName},
		Summary:      "Growth is constrained by driver hiring.",
		Notes:        in.Notes,
	}, nil
}

func (g *fakeGenerator) generations() []generation.BriefInput {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generation.BriefInput(nil), g.briefInputs...)
}

// scriptedGate returns the scripted scores in order and repeats the last.
type scriptedGate struct {
	mu        sync.Mutex
	threshold int
	scores    []int
	calls     int
}

func newScriptedGate(threshold int, scores ...int) *scriptedGate {
	return &scriptedGate{threshold: threshold, scores: scores}
}

func (g *scriptedGate) Evaluate(context.Context, brief.Brief) (quality.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	score := 100
	if len(g.scores) > 0 {
		score = g.scores[min(g.calls, len(g.scores)-1)]
	}
	g.calls++
	result := quality.Result{Passed: score >= g.threshold, Score: score}
	if !result.Passed {
		result.Issues = []string{"too few open questions"}
	}
	return result, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) has(event notifications.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

type recordingDeliverer struct {
	mu         sync.Mutex
	deliveries []notifications.PacketDelivery
	err        error
}

func (d *recordingDeliverer) DeliverPacket(_ context.Context, delivery notifications.PacketDelivery) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.deliveries = append(d.deliveries, delivery)
	return nil
}

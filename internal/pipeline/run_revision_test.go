package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"briefsmith/internal/artifact"
	"briefsmith/internal/brief"
	"briefsmith/internal/generation"
	"briefsmith/internal/pipeline"
	"briefsmith/internal/registry"
	"briefsmith/internal/revision"
	"briefsmith/internal/services"
)

// blockRevisions makes ReviseBrief wait until the returned release func is
// called. entered receives once per revision call.
func blockRevisions(h *harness) (entered <-chan struct{}, release func()) {
	in := make(chan struct{}, 4)
	gate := make(chan struct{})
	var once sync.Once
	h.gen.revise = func(ctx context.Context, req generation.RevisionInput) (brief.Brief, error) {
		in <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return brief.Brief{}, ctx.Err()
		}
		return req.Brief, nil
	}
	return in, func() { once.Do(func() { close(gate) }) }
}

func waitEntered(t *testing.T, entered <-chan struct{}) {
	t.Helper()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("revision never started")
	}
}

func TestUpdateBriefAppliesCorrections(t *testing.T) {
	h := newHarness(t)
	sess := h.withFeedback(t)
	ctx := context.Background()

	run, err := h.mgr.UpdateBrief(ctx, sess.ID, "tester", "update-1")
	if err != nil {
		t.Fatalf("UpdateBrief: %v", err)
	}
	if run.Kind != registry.RunRevision {
		t.Fatalf("run kind = %s", run.Kind)
	}
	h.mgr.Wait()

	got := h.requireStatus(t, sess.ID, registry.StatusBriefUpdated)
	if got.CurrentBriefVersion != 2 {
		t.Fatalf("currentBriefVersion = %d, want 2", got.CurrentBriefVersion)
	}
	var revised brief.Brief
	version, err := h.artifacts.LatestJSON(ctx, sess.ID, artifact.KindBrief, &revised)
	if err != nil || version != 2 {
		t.Fatalf("latest brief v%d: %v", version, err)
	}
	if revised.KeyPoints[2].Assertion != "The fleet has 350 trucks" {
		t.Fatalf("correction not applied: %+v", revised.KeyPoints)
	}
	if len(revised.SelectedQuestionIDs) != 2 || revised.SelectedQuestionIDs[0] != "q2" || revised.SelectedQuestionIDs[1] != "q4" {
		t.Fatalf("selected questions = %v", revised.SelectedQuestionIDs)
	}
	if len(h.gen.revisions) != 1 || len(h.gen.revisions[0].Request.Changes) != 1 || !h.gen.revisions[0].Request.Changes[0].Matched {
		t.Fatalf("revision request = %+v", h.gen.revisions)
	}
	if countOf(h.auditActions(t, sess.ID), registry.ActionBriefUpdated) != 1 {
		t.Fatal("expected one brief_updated audit entry")
	}
}

func TestConcurrentUpdateBriefConflicts(t *testing.T) {
	h := newHarness(t)
	entered, release := blockRevisions(h)
	defer release()
	sess := h.withFeedback(t)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.mgr.UpdateBrief(context.Background(), sess.ID, "tester", []string{"token-a", "token-b"}[i])
		}()
	}
	wg.Wait()

	succeeded, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, services.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || conflicts != 1 {
		t.Fatalf("succeeded=%d conflicts=%d (%v)", succeeded, conflicts, errs)
	}

	waitEntered(t, entered)
	release()
	h.mgr.Wait()
	h.requireStatus(t, sess.ID, registry.StatusBriefUpdated)
}

func TestUpdateBriefReplaysSameAttemptToken(t *testing.T) {
	h := newHarness(t)
	entered, release := blockRevisions(h)
	defer release()
	sess := h.withFeedback(t)
	ctx := context.Background()

	first, err := h.mgr.UpdateBrief(ctx, sess.ID, "tester", "same-token")
	if err != nil {
		t.Fatalf("UpdateBrief: %v", err)
	}
	waitEntered(t, entered)
	again, err := h.mgr.UpdateBrief(ctx, sess.ID, "tester", "same-token")
	if err != nil {
		t.Fatalf("replayed UpdateBrief: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("replay returned run %d, want %d", again.ID, first.ID)
	}
	release()
	h.mgr.Wait()
	if n := len(h.gen.revisions); n != 1 {
		t.Fatalf("revision ran %d times", n)
	}
}

func TestOptOutAfterCorrectionsSuppressesThem(t *testing.T) {
	h := newHarness(t)
	sess := h.withFeedback(t)
	ctx := context.Background()

	got, err := h.mgr.SubmitFeedback(ctx, sess.ID, pipeline.Feedback{OptOut: true, OptOutReason: "  prefer not  "})
	if err != nil {
		t.Fatalf("opt-out: %v", err)
	}
	if got.Status != registry.StatusOptedOut || !got.OptedOut {
		t.Fatalf("session after opt-out = %s opted_out=%v", got.Status, got.OptedOut)
	}

	current := latestBrief(t, h, sess.ID)
	corrections, err := h.reg.Corrections(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Corrections: %v", err)
	}
	if len(corrections) == 0 {
		t.Fatal("corrections should remain stored")
	}
	if req := revision.Merge(current, corrections, got.OptedOut); !req.IsEmpty() {
		t.Fatalf("opted-out merge should be empty, got %+v", req)
	}

	if _, err := h.mgr.UpdateBrief(ctx, sess.ID, "tester", ""); !errors.Is(err, services.ErrPreconditionFailed) {
		t.Fatalf("update-brief after opt-out: %v", err)
	}
	if _, err := h.mgr.SubmitFeedback(ctx, sess.ID, pipeline.Feedback{Corrections: []pipeline.CorrectionInput{{Original: "a", Corrected: "b"}}}); !errors.Is(err, services.ErrPreconditionFailed) {
		t.Fatalf("corrections after opt-out: %v", err)
	}
	again, err := h.mgr.SubmitFeedback(ctx, sess.ID, pipeline.Feedback{OptOut: true})
	if err != nil || again.Status != registry.StatusOptedOut {
		t.Fatalf("repeated opt-out: %v", err)
	}
}

func TestOptOutDuringRevisionRoutesToOptedOut(t *testing.T) {
	h := newHarness(t)
	entered, release := blockRevisions(h)
	defer release()
	sess := h.withFeedback(t)
	ctx := context.Background()

	run, err := h.mgr.UpdateBrief(ctx, sess.ID, "tester", "update-1")
	if err != nil {
		t.Fatalf("UpdateBrief: %v", err)
	}
	waitEntered(t, entered)

	pending, err := h.mgr.SubmitFeedback(ctx, sess.ID, pipeline.Feedback{OptOut: true})
	if err != nil {
		t.Fatalf("opt-out while updating: %v", err)
	}
	if pending.Status != registry.StatusUpdatingBrief || !pending.OptedOut {
		t.Fatalf("pending opt-out = %s opted_out=%v", pending.Status, pending.OptedOut)
	}
	release()
	h.mgr.Wait()

	got := h.requireStatus(t, sess.ID, registry.StatusOptedOut)
	if got.CurrentBriefVersion != 1 {
		t.Fatalf("revision should be discarded, currentBriefVersion = %d", got.CurrentBriefVersion)
	}
	finished, err := h.reg.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if finished.Outcome != registry.OutcomeOptedOut {
		t.Fatalf("run outcome = %q", finished.Outcome)
	}
}

func TestRevisionFailureWithPendingOptOutEndsOptedOut(t *testing.T) {
	h := newHarness(t)
	sess := h.withFeedback(t)
	ctx := context.Background()

	var once sync.Once
	h.blobs.setOnGet(func(ctx context.Context, _ string) error {
		var err error
		once.Do(func() {
			// The interviewee opts out while the run is loading the brief.
			if err = h.reg.SetOptOut(ctx, sess.ID, registry.StatusUpdatingBrief, "changed my mind"); err == nil {
				err = services.Wrap(services.ErrTransient, "updating_brief", "load brief", "blob store unavailable", nil)
			}
		})
		return err
	})

	run, err := h.mgr.UpdateBrief(ctx, sess.ID, "tester", "update-1")
	if err != nil {
		t.Fatalf("UpdateBrief: %v", err)
	}
	h.mgr.Wait()

	got := h.requireStatus(t, sess.ID, registry.StatusOptedOut)
	if !got.OptedOut || got.CurrentBriefVersion != 1 {
		t.Fatalf("session after failed revision = %+v", got)
	}
	finished, err := h.reg.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if finished.Outcome != registry.OutcomeOptedOut {
		t.Fatalf("run outcome = %q", finished.Outcome)
	}
	if len(h.gen.revisions) != 0 {
		t.Fatal("generator should not run once the brief load failed")
	}
}

func TestUpdateBriefWithoutCorrectionsFails(t *testing.T) {
	h := newHarness(t)
	sess := h.sent(t)
	ctx := context.Background()
	if _, err := h.mgr.SubmitFeedback(ctx, sess.ID, pipeline.Feedback{SelectedQuestions: []string{"q1"}}); err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
	if _, err := h.mgr.UpdateBrief(ctx, sess.ID, "tester", ""); err != nil {
		t.Fatalf("UpdateBrief: %v", err)
	}
	h.mgr.Wait()

	got := h.requireStatus(t, sess.ID, registry.StatusBriefUpdateFailed)
	if got.ErrorMessage == "" {
		t.Fatal("expected an error message")
	}
	if len(h.gen.revisions) != 0 {
		t.Fatal("generator should not run for an empty revision")
	}
}

func TestSubmitFeedbackValidation(t *testing.T) {
	h := newHarness(t)
	sess := h.sent(t)
	tests := []struct {
		name string
		fb   pipeline.Feedback
		want error
	}{
		{"empty", pipeline.Feedback{}, services.ErrValidation},
		{"missing corrected text", pipeline.Feedback{Corrections: []pipeline.CorrectionInput{{Original: "x"}}}, services.ErrValidation},
		{"unknown category", pipeline.Feedback{Corrections: []pipeline.CorrectionInput{{Original: "x", Corrected: "y", Category: "rumor"}}}, services.ErrValidation},
		{"too many questions", pipeline.Feedback{SelectedQuestions: []string{"q1", "q2", "q3", "q4", "q5", "q6", "q7"}}, services.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.mgr.SubmitFeedback(context.Background(), sess.ID, tt.fb); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	h.requireStatus(t, sess.ID, registry.StatusPacketSent)

	created, err := h.reg.Create(context.Background(), registry.NewSession{UserID: "tester", CompanyName: "Initech", LeaderName: "Bill L", SourceURLs: []string{"https://initech.example"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	fb := pipeline.Feedback{Corrections: []pipeline.CorrectionInput{{Original: "x", Corrected: "y"}}}
	if _, err := h.mgr.SubmitFeedback(context.Background(), created.ID, fb); !errors.Is(err, services.ErrPreconditionFailed) {
		t.Fatalf("feedback before brief: %v", err)
	}
}

func TestFeedbackRequiresSentPacket(t *testing.T) {
	h := newHarness(t)
	sess := h.ready(t)
	ctx := context.Background()

	tests := []struct {
		name string
		fb   pipeline.Feedback
	}{
		{"corrections", pipeline.Feedback{Corrections: []pipeline.CorrectionInput{{Original: "The fleet has 200 trucks", Corrected: "The fleet has 350 trucks"}}}},
		{"question picks", pipeline.Feedback{SelectedQuestions: []string{"q1"}}},
		{"opt-out", pipeline.Feedback{OptOut: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.mgr.SubmitFeedback(ctx, sess.ID, tt.fb); !errors.Is(err, services.ErrPreconditionFailed) {
				t.Fatalf("expected precondition failure before the packet is sent, got %v", err)
			}
		})
	}
	got := h.requireStatus(t, sess.ID, registry.StatusBriefReady)
	if got.OptedOut {
		t.Fatal("opt-out marker written before the packet was sent")
	}
	corrections, err := h.reg.Corrections(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Corrections: %v", err)
	}
	if len(corrections) != 0 {
		t.Fatalf("corrections stored before the packet was sent: %+v", corrections)
	}
}

func latestBrief(t *testing.T, h *harness, id string) brief.Brief {
	t.Helper()
	var b brief.Brief
	if _, err := h.artifacts.LatestJSON(context.Background(), id, artifact.KindBrief, &b); err != nil {
		t.Fatalf("LatestJSON: %v", err)
	}
	return b
}

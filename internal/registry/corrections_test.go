package registry_test

import (
	"context"
	"errors"
	"testing"

	"briefsmith/internal/registry"
	"briefsmith/internal/services"
	"briefsmith/internal/testsupport"
)

func TestAddCorrectionsMovesToFeedbackReceived(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := testsupport.MustOpenRegistry(t, cfg)
	ctx := context.Background()
	sess := testsupport.NewSession(t, reg, "Acme")
	testsupport.MoveTo(t, reg, sess.ID, append(testsupport.ReadyPath(), registry.StatusPacketSent)...)

	corrections := []registry.Correction{
		{Original: "Founded in 2015", Corrected: "Founded in 2014", Category: registry.CategoryFactualError},
		{Original: "200 trucks", Corrected: "350 trucks", Category: registry.CategoryOutdated, Note: "grew last year"},
	}
	if err := reg.AddCorrections(ctx, sess.ID, registry.StatusPacketSent, corrections, []string{"q1", "q3"}); err != nil {
		t.Fatalf("AddCorrections: %v", err)
	}
	if err := reg.AddCorrections(ctx, sess.ID, registry.StatusFeedbackReceived, corrections[:1], nil); err != nil {
		t.Fatalf("second AddCorrections: %v", err)
	}

	got, err := reg.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != registry.StatusFeedbackReceived {
		t.Fatalf("status = %s", got.Status)
	}
	if len(got.SelectedQuestions) != 2 {
		t.Fatalf("selected questions = %v", got.SelectedQuestions)
	}

	stored, err := reg.Corrections(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Corrections: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("expected 3 corrections, got %d", len(stored))
	}
	if stored[1].Note != "grew last year" || stored[1].Category != registry.CategoryOutdated {
		t.Fatalf("unexpected correction: %+v", stored[1])
	}
}

func TestOptOutIsTerminalAndBlocksCorrections(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := testsupport.MustOpenRegistry(t, cfg)
	ctx := context.Background()
	sess := testsupport.NewSession(t, reg, "Acme")
	testsupport.MoveTo(t, reg, sess.ID, append(testsupport.ReadyPath(), registry.StatusPacketSent)...)

	if err := reg.SetOptOut(ctx, sess.ID, registry.StatusPacketSent, "not comfortable"); err != nil {
		t.Fatalf("SetOptOut: %v", err)
	}
	got, err := reg.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != registry.StatusOptedOut || !got.OptedOut {
		t.Fatalf("expected opted_out, got %+v", got)
	}
	marker, err := reg.OptOut(ctx, sess.ID)
	if err != nil || marker == nil || marker.Reason != "not comfortable" {
		t.Fatalf("OptOut = %+v, %v", marker, err)
	}

	err = reg.AddCorrections(ctx, sess.ID, registry.StatusOptedOut, []registry.Correction{{Original: "a", Corrected: "b", Category: registry.CategoryFactualError}}, nil)
	if !errors.Is(err, services.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure after opt-out, got %v", err)
	}
	if !registry.StatusOptedOut.IsTerminal() {
		t.Fatal("opted_out must be terminal")
	}
}

func TestOptOutDuringUpdateOnlyFlags(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := testsupport.MustOpenRegistry(t, cfg)
	ctx := context.Background()
	sess := testsupport.NewSession(t, reg, "Acme")
	testsupport.MoveTo(t, reg, sess.ID, append(testsupport.ReadyPath(), registry.StatusPacketSent, registry.StatusFeedbackReceived, registry.StatusUpdatingBrief)...)

	if err := reg.SetOptOut(ctx, sess.ID, registry.StatusUpdatingBrief, ""); err != nil {
		t.Fatalf("SetOptOut: %v", err)
	}
	got, err := reg.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != registry.StatusUpdatingBrief || !got.OptedOut {
		t.Fatalf("expected flagged updating_brief, got %+v", got)
	}

	if err := reg.SetOptOut(ctx, sess.ID, registry.StatusGenerating, ""); !errors.Is(err, services.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure while generating, got %v", err)
	}
}

func TestParseCategory(t *testing.T) {
	cases := []struct {
		in   string
		want registry.CorrectionCategory
		ok   bool
	}{
		{"", registry.CategoryFactualError, true},
		{"Outdated", registry.CategoryOutdated, true},
		{" needs_nuance ", registry.CategoryNeedsNuance, true},
		{"opinion", "", false},
	}
	for _, tc := range cases {
		got, ok := registry.ParseCategory(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseCategory(%q) = %q,%v want %q,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

package textutil_test

import (
	"math"
	"testing"

	"briefsmith/internal/textutil"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  acme   corp ", "Acme Corp"},
		{"jane doe", "Jane Doe"},
		{"eBay", "eBay"},
		{"McKinsey  & Company", "McKinsey & Company"},
		{"   ", ""},
	}
	for _, tc := range tests {
		if got := textutil.NormalizeName(tc.in); got != tc.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFoldMatchesComposedAndCase(t *testing.T) {
	composed := "Café Strategy"
	decomposed := "CAFÉ   strategy"
	if textutil.Fold(composed) != textutil.Fold(decomposed) {
		t.Fatalf("expected fold equality: %q vs %q", textutil.Fold(composed), textutil.Fold(decomposed))
	}
	if !textutil.ContainsFold("Revenue grew 40% in 2023.", "revenue GREW 40%") {
		t.Fatal("expected folded substring match")
	}
	if textutil.ContainsFold("anything", "  ") {
		t.Fatal("blank needle must not match")
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := textutil.NewFingerprint("The quick brown fox jumps over the lazy dog")
	b := textutil.NewFingerprint("the QUICK brown fox jumps over the lazy dog!")
	if got := textutil.CosineSimilarity(a, b); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical text similarity = %v", got)
	}
	c := textutil.NewFingerprint("apple banana cherry")
	if got := textutil.CosineSimilarity(a, c); got != 0 {
		t.Fatalf("disjoint similarity = %v", got)
	}
	if got := textutil.CosineSimilarity(nil, a); got != 0 {
		t.Fatalf("nil similarity = %v", got)
	}
	if textutil.NewFingerprint("a an of") != nil {
		t.Fatal("expected nil fingerprint for short tokens only")
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Acme Corp", "acme_corp"},
		{"  R&D / Labs ", "r_d_labs"},
		{"north-east", "north-east"},
		{"***", "unknown"},
	}
	for _, tc := range tests {
		if got := textutil.SanitizeToken(tc.in); got != tc.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

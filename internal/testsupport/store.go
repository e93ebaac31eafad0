package testsupport

import (
	"context"
	"testing"

	"briefsmith/internal/artifact"
	"briefsmith/internal/blobstore"
	"briefsmith/internal/config"
	"briefsmith/internal/registry"
)

// MustOpenRegistry opens a registry.Store for tests and registers cleanup.
func MustOpenRegistry(t testing.TB, cfg *config.Config) *registry.Store {
	t.Helper()

	store, err := registry.Open(cfg)
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenArtifacts builds a filesystem-backed artifact store over reg.
func MustOpenArtifacts(t testing.TB, cfg *config.Config, reg *registry.Store) *artifact.Store {
	t.Helper()

	blobs, err := blobstore.NewFilesystem(cfg.Paths.BlobDir)
	if err != nil {
		t.Fatalf("blobstore.NewFilesystem: %v", err)
	}
	return artifact.New(reg, blobs)
}

// NewSession creates a session owned by "tester" with the given source URLs.
func NewSession(t testing.TB, reg *registry.Store, company string, urls ...string) *registry.Session {
	t.Helper()

	sess, err := reg.Create(context.Background(), registry.NewSession{
		UserID:      "tester",
		CompanyName: company,
		LeaderName:  "Dana Leader",
		SourceURLs:  urls,
	})
	if err != nil {
		t.Fatalf("registry.Create: %v", err)
	}
	return sess
}

// MoveTo walks a fresh session along the given statuses, one CAS transition
// per step, and fails the test on the first rejected edge.
func MoveTo(t testing.TB, reg *registry.Store, id string, path ...registry.Status) {
	t.Helper()

	sess, err := reg.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("registry.Get: %v", err)
	}
	from := sess.Status
	for _, to := range path {
		if err := reg.Transition(context.Background(), id, from, to, registry.TransitionDetail{}); err != nil {
			t.Fatalf("transition %s -> %s: %v", from, to, err)
		}
		from = to
	}
}

// ReadyPath is the status walk from created to brief_ready.
func ReadyPath() []registry.Status {
	return []registry.Status{
		registry.StatusIngesting,
		registry.StatusGenerating,
		registry.StatusQualityChecking,
		registry.StatusBriefReady,
	}
}

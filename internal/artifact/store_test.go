package artifact_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"briefsmith/internal/artifact"
	"briefsmith/internal/services"
	"briefsmith/internal/testsupport"
)

func TestPutVersionStartsAtOneAndIncrements(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := testsupport.MustOpenRegistry(t, cfg)
	store := testsupport.MustOpenArtifacts(t, cfg, reg)
	sess := testsupport.NewSession(t, reg, "Acme")
	ctx := context.Background()

	for want, body := range []string{`{"v":1}`, `{"v":2}`} {
		got, err := store.PutVersion(ctx, sess.ID, artifact.KindBrief, []byte(body), artifact.Meta{RunToken: "run-a"})
		if err != nil {
			t.Fatalf("PutVersion: %v", err)
		}
		if got != want+1 {
			t.Fatalf("version = %d, want %d", got, want+1)
		}
	}
	packet, err := store.PutVersion(ctx, sess.ID, artifact.KindPacket, []byte(`{}`), artifact.Meta{})
	if err != nil {
		t.Fatalf("PutVersion packet: %v", err)
	}
	if packet != 1 {
		t.Fatalf("versions are per kind, packet got %d", packet)
	}

	content, version, err := store.GetLatest(ctx, sess.ID, artifact.KindBrief)
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if version != 2 || string(content) != `{"v":2}` {
		t.Fatalf("GetLatest = %s v%d", content, version)
	}
	first, err := store.GetVersion(ctx, sess.ID, artifact.KindBrief, 1)
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if string(first) != `{"v":1}` {
		t.Fatalf("GetVersion(1) = %s", first)
	}

	records, err := store.Versions(ctx, sess.ID, artifact.KindBrief)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(records) != 2 || records[0].RunToken != "run-a" || records[1].SHA256 != artifact.Checksum([]byte(`{"v":2}`)) {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestGetMissingArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := testsupport.MustOpenRegistry(t, cfg)
	store := testsupport.MustOpenArtifacts(t, cfg, reg)
	sess := testsupport.NewSession(t, reg, "Acme")
	ctx := context.Background()

	if _, _, err := store.GetLatest(ctx, sess.ID, artifact.KindSynthesis); !errors.Is(err, artifact.ErrNotFound) {
		t.Fatalf("expected artifact.ErrNotFound, got %v", err)
	}
	_, err := store.GetVersion(ctx, sess.ID, artifact.KindBrief, 3)
	if !errors.Is(err, artifact.ErrNotFound) || !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPutVersionRejectsUnknownKind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := testsupport.MustOpenRegistry(t, cfg)
	store := testsupport.MustOpenArtifacts(t, cfg, reg)
	sess := testsupport.NewSession(t, reg, "Acme")

	if _, err := store.PutVersion(context.Background(), sess.ID, artifact.Kind("memo"), []byte("x"), artifact.Meta{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConcurrentPutVersionIsGapless(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := testsupport.MustOpenRegistry(t, cfg)
	store := testsupport.MustOpenArtifacts(t, cfg, reg)
	sess := testsupport.NewSession(t, reg, "Acme")
	ctx := context.Background()

	const writers = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		versions []int
		errs     []error
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := store.PutVersion(ctx, sess.ID, artifact.KindBrief, []byte(`{"writer":true}`), artifact.Meta{})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			versions = append(versions, v)
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("PutVersion errors: %v", errs)
	}
	sort.Ints(versions)
	for i, v := range versions {
		if v != i+1 {
			t.Fatalf("versions not gapless: %v", versions)
		}
	}
	_, latest, err := store.GetLatest(ctx, sess.ID, artifact.KindBrief)
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if latest != writers {
		t.Fatalf("latest = %d, want %d", latest, writers)
	}
}

func TestJSONHelpers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := testsupport.MustOpenRegistry(t, cfg)
	store := testsupport.MustOpenArtifacts(t, cfg, reg)
	sess := testsupport.NewSession(t, reg, "Acme")
	ctx := context.Background()

	b := testsupport.SampleBrief("Acme")
	if _, err := store.PutJSON(ctx, sess.ID, artifact.KindBrief, b, artifact.Meta{}); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	var decoded struct {
		Questions []struct {
			ID string `json:"id"`
		} `json:"questions"`
	}
	version, err := store.LatestJSON(ctx, sess.ID, artifact.KindBrief, &decoded)
	if err != nil {
		t.Fatalf("LatestJSON: %v", err)
	}
	if version != 1 || len(decoded.Questions) != len(b.Questions) {
		t.Fatalf("LatestJSON = v%d %+v", version, decoded)
	}
}

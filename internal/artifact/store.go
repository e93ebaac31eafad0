package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"briefsmith/internal/blobstore"
	"briefsmith/internal/registry"
	"briefsmith/internal/services"
)

// Kind names a versioned document family.
type Kind = registry.ArtifactKind

// Artifact kinds.
const (
	KindBrief     = registry.KindBrief
	KindPacket    = registry.KindPacket
	KindSynthesis = registry.KindSynthesis
	KindSources   = registry.KindSources
)

// ErrNotFound is returned when no version exists for the requested key.
var ErrNotFound = fmt.Errorf("%w: artifact", services.ErrNotFound)

const contentTypeJSON = "application/json"

// Meta is optional provenance recorded with a version.
type Meta struct {
	RunToken    string
	ContentType string
	Notes       map[string]string
}

// Record describes one stored version.
type Record = registry.ArtifactRecord

// Store combines the blob backend with the registry version index.
type Store struct {
	index *registry.Store
	blobs blobstore.Store
	now   func() time.Time
}

// New returns an artifact store.
func New(index *registry.Store, blobs blobstore.Store) *Store {
	return &Store{index: index, blobs: blobs, now: time.Now}
}

// PutVersion stores content as the next version of (sessionID, kind) and
// returns the allocated version. Versions start at 1 and have no gaps.
func (s *Store) PutVersion(ctx context.Context, sessionID string, kind Kind, content []byte, meta Meta) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: unknown artifact kind %q", services.ErrValidation, kind)
	}
	if sessionID == "" {
		return 0, fmt.Errorf("%w: artifact requires a session id", services.ErrValidation)
	}
	contentType := meta.ContentType
	if contentType == "" {
		contentType = contentTypeJSON
	}
	checksum := Checksum(content)
	blob, err := WriteFrontMatter(Header{
		SessionID:   sessionID,
		Kind:        kind,
		ContentType: contentType,
		RunToken:    meta.RunToken,
		CreatedAt:   s.now(),
		Checksum:    checksum,
		Notes:       meta.Notes,
	}, content)
	if err != nil {
		return 0, err
	}

	key := blobstore.Key(sessionID, string(kind), uuid.NewString()+".md")
	if err := s.blobs.Put(ctx, key, blob); err != nil {
		return 0, fmt.Errorf("store %s blob: %w", kind, err)
	}
	version, err := s.index.InsertArtifact(ctx, registry.ArtifactRecord{
		SessionID: sessionID,
		Kind:      kind,
		BlobKey:   key,
		SHA256:    checksum,
		Size:      int64(len(content)),
		RunToken:  meta.RunToken,
	})
	if err != nil {
		_ = s.blobs.Delete(context.WithoutCancel(ctx), key)
		return 0, err
	}
	return version, nil
}

// GetVersion returns the content of one version.
func (s *Store) GetVersion(ctx context.Context, sessionID string, kind Kind, version int) ([]byte, error) {
	rec, err := s.index.Artifact(ctx, sessionID, kind, version)
	if err != nil {
		return nil, translateNotFound(err, sessionID, kind)
	}
	return s.load(ctx, rec)
}

// GetLatest returns the content and number of the highest version.
func (s *Store) GetLatest(ctx context.Context, sessionID string, kind Kind) ([]byte, int, error) {
	rec, err := s.index.LatestArtifact(ctx, sessionID, kind)
	if err != nil {
		return nil, 0, translateNotFound(err, sessionID, kind)
	}
	content, err := s.load(ctx, rec)
	if err != nil {
		return nil, 0, err
	}
	return content, rec.Version, nil
}

// Versions lists the stored versions of (sessionID, kind) in ascending order.
func (s *Store) Versions(ctx context.Context, sessionID string, kind Kind) ([]Record, error) {
	return s.index.Artifacts(ctx, sessionID, kind)
}

// PutJSON encodes v and stores it as the next version.
func (s *Store) PutJSON(ctx context.Context, sessionID string, kind Kind, v any, meta Meta) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", kind, err)
	}
	meta.ContentType = contentTypeJSON
	return s.PutVersion(ctx, sessionID, kind, data, meta)
}

// LatestJSON decodes the highest version into dst and returns its number.
func (s *Store) LatestJSON(ctx context.Context, sessionID string, kind Kind, dst any) (int, error) {
	content, version, err := s.GetLatest(ctx, sessionID, kind)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(content, dst); err != nil {
		return 0, fmt.Errorf("decode %s v%d: %w", kind, version, err)
	}
	return version, nil
}

// VersionJSON decodes one version into dst.
func (s *Store) VersionJSON(ctx context.Context, sessionID string, kind Kind, version int, dst any) error {
	content, err := s.GetVersion(ctx, sessionID, kind, version)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(content, dst); err != nil {
		return fmt.Errorf("decode %s v%d: %w", kind, version, err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, rec *registry.ArtifactRecord) ([]byte, error) {
	data, err := s.blobs.Get(ctx, rec.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("load %s v%d: %w", rec.Kind, rec.Version, err)
	}
	_, body, err := ParseFrontMatter(data)
	if err != nil {
		return nil, fmt.Errorf("load %s v%d: %w", rec.Kind, rec.Version, err)
	}
	return body, nil
}

func translateNotFound(err error, sessionID string, kind Kind) error {
	if errors.Is(err, services.ErrNotFound) {
		return fmt.Errorf("%w: %s for session %s", ErrNotFound, kind, sessionID)
	}
	return err
}

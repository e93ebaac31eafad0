package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

const artifactColumns = "session_id, kind, version, blob_key, sha256, size, run_token, created_at"

const versionAllocateAttempts = 5

func scanArtifact(scanner interface{ Scan(dest ...any) error }) (*ArtifactRecord, error) {
	var (
		rec      ArtifactRecord
		kind     string
		runToken sql.NullString
		created  string
	)
	if err := scanner.Scan(&rec.SessionID, &kind, &rec.Version, &rec.BlobKey, &rec.SHA256, &rec.Size, &runToken, &created); err != nil {
		return nil, err
	}
	rec.Kind = ArtifactKind(kind)
	rec.RunToken = runToken.String
	if ts, err := parseTimeString(created); err == nil {
		rec.CreatedAt = ts
	}
	return &rec, nil
}

// InsertArtifact allocates the next version for (session, kind) and records
// the index row in a single statement. The caller must have made the blob
// durable first.
func (s *Store) InsertArtifact(ctx context.Context, rec ArtifactRecord) (int, error) {
	ctx = ensureContext(ctx)
	var (
		version int
		err     error
	)
	for attempt := 0; attempt < versionAllocateAttempts; attempt++ {
		err = retryOnBusy(ctx, func() error {
			return s.db.QueryRowContext(ctx,
				`INSERT INTO artifacts (session_id, kind, version, blob_key, sha256, size, run_token, created_at)
                 SELECT ?, ?, COALESCE(MAX(version), 0) + 1, ?, ?, ?, ?, ?
                 FROM artifacts WHERE session_id = ? AND kind = ?
                 RETURNING version`,
				rec.SessionID, rec.Kind, rec.BlobKey, rec.SHA256, rec.Size, nullableString(rec.RunToken), nowString(),
				rec.SessionID, rec.Kind,
			).Scan(&version)
		})
		if err == nil {
			return version, nil
		}
		if !isUniqueViolation(err) {
			break
		}
	}
	return 0, fmt.Errorf("allocate artifact version: %w", err)
}

// Artifact returns the index row for one version.
func (s *Store) Artifact(ctx context.Context, sessionID string, kind ArtifactKind, version int) (*ArtifactRecord, error) {
	rec, err := scanArtifact(s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+artifactColumns+` FROM artifacts WHERE session_id = ? AND kind = ? AND version = ?`,
		sessionID, kind, version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(string(kind)+" version", sessionID+"/"+strconv.Itoa(version))
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return rec, nil
}

// LatestArtifact returns the index row for the highest version.
func (s *Store) LatestArtifact(ctx context.Context, sessionID string, kind ArtifactKind) (*ArtifactRecord, error) {
	rec, err := scanArtifact(s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+artifactColumns+` FROM artifacts WHERE session_id = ? AND kind = ? ORDER BY version DESC LIMIT 1`,
		sessionID, kind))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(string(kind), sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest artifact: %w", err)
	}
	return rec, nil
}

// Artifacts lists every version of (session, kind) in ascending order.
func (s *Store) Artifacts(ctx context.Context, sessionID string, kind ArtifactKind) ([]ArtifactRecord, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+artifactColumns+` FROM artifacts WHERE session_id = ? AND kind = ? ORDER BY version`,
		sessionID, kind)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()
	var out []ArtifactRecord
	for rows.Next() {
		rec, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// LatestVersions returns the highest version per artifact kind for a session.
func (s *Store) LatestVersions(ctx context.Context, sessionID string) (map[ArtifactKind]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT kind, MAX(version) FROM artifacts WHERE session_id = ? GROUP BY kind`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("latest artifact versions: %w", err)
	}
	defer rows.Close()
	out := make(map[ArtifactKind]int)
	for rows.Next() {
		var (
			kind    string
			version int
		)
		if err := rows.Scan(&kind, &version); err != nil {
			return nil, fmt.Errorf("scan artifact version: %w", err)
		}
		out[ArtifactKind(kind)] = version
	}
	return out, rows.Err()
}

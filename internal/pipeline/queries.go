package pipeline

import (
	"context"
	"fmt"

	"briefsmith/internal/artifact"
	"briefsmith/internal/brief"
	"briefsmith/internal/registry"
	"briefsmith/internal/services"
)

// Session returns the stored session.
func (m *Manager) Session(ctx context.Context, id string) (*registry.Session, error) {
	return m.store.Get(ctx, id)
}

// Status returns the polling view of a session.
func (m *Manager) Status(ctx context.Context, id string) (registry.StatusView, error) {
	return m.store.GetStatus(ctx, id)
}

// ListSessions returns the user's sessions, newest first.
func (m *Manager) ListSessions(ctx context.Context, userID string, limit int) ([]registry.Summary, error) {
	return m.store.ListByUser(ctx, userID, limit)
}

// Artifact returns one artifact version, or the latest when version is 0.
func (m *Manager) Artifact(ctx context.Context, id string, kind artifact.Kind, version int) ([]byte, int, error) {
	if !kind.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown artifact kind %q", services.ErrValidation, kind)
	}
	if version < 0 {
		return nil, 0, fmt.Errorf("%w: version must be positive", services.ErrValidation)
	}
	if version == 0 {
		return m.artifacts.GetLatest(ctx, id, kind)
	}
	content, err := m.artifacts.GetVersion(ctx, id, kind, version)
	if err != nil {
		return nil, 0, err
	}
	return content, version, nil
}

// ArtifactVersions lists the stored versions of one kind.
func (m *Manager) ArtifactVersions(ctx context.Context, id string, kind artifact.Kind) ([]artifact.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown artifact kind %q", services.ErrValidation, kind)
	}
	return m.artifacts.Versions(ctx, id, kind)
}

// AuditTrail returns the session's audit entries, oldest first.
func (m *Manager) AuditTrail(ctx context.Context, id string, limit int) ([]registry.AuditEntry, error) {
	if _, err := m.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.store.AuditTrail(ctx, id, limit)
}

// SentPacket returns the latest packet for the interviewee view. It is only
// available once a packet was sent and while the session has not opted out.
func (m *Manager) SentPacket(ctx context.Context, id string) (*registry.Session, brief.Packet, int, error) {
	var packet brief.Packet
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, packet, 0, err
	}
	if sess.PacketSentAt == nil || sess.OptedOut {
		return nil, packet, 0, fmt.Errorf("%w: no packet is available for session %s", services.ErrNotFound, id)
	}
	version, err := m.artifacts.LatestJSON(ctx, id, artifact.KindPacket, &packet)
	if err != nil {
		return nil, packet, 0, err
	}
	return sess, packet, version, nil
}

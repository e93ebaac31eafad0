package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// AppendAudit writes one audit entry outside of a status transition.
func (s *Store) AppendAudit(ctx context.Context, entry AuditEntry) error {
	if entry.Action == "" {
		return errors.New("audit entry requires an action")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertAudit(ctx, tx, entry.Actor, entry.Action, entry.SessionID, entry.Detail)
	})
}

// AuditTrail returns a session's audit entries, oldest first. A non-positive
// limit returns everything.
func (s *Store) AuditTrail(ctx context.Context, sessionID string, limit int) ([]AuditEntry, error) {
	query := `SELECT id, ts, actor, action, session_id, detail_json FROM audit WHERE session_id = ? ORDER BY id`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			entry     AuditEntry
			ts        string
			sessionID sql.NullString
			detail    string
		)
		if err := rows.Scan(&entry.ID, &ts, &entry.Actor, &entry.Action, &sessionID, &detail); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if parsed, err := parseTimeString(ts); err == nil {
			entry.Timestamp = parsed
		}
		entry.SessionID = sessionID.String
		if detail != "" {
			_ = json.Unmarshal([]byte(detail), &entry.Detail)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

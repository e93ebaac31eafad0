package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"briefsmith/internal/services"
)

// AddCorrections appends corrections, records the interviewee's selected
// questions, and moves the session from -> feedback_received in one
// transaction. Sessions carrying an opt-out marker reject new corrections.
func (s *Store) AddCorrections(ctx context.Context, id string, from Status, corrections []Correction, selected []string) error {
	if !CanTransition(from, StatusFeedbackReceived) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, StatusFeedbackReceived)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		optedOut, err := hasOptOutTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if optedOut {
			return fmt.Errorf("%w: session %s has opted out", services.ErrPreconditionFailed, id)
		}
		detail := TransitionDetail{
			Actor:  ActorInterviewee,
			Action: ActionCorrectionsSubmitted,
			Metadata: map[string]any{
				"correction_count":        len(corrections),
				"selected_question_count": len(selected),
			},
		}
		if selected != nil {
			detail.Update.SelectedQuestions = &selected
		}
		if err := transitionTx(ctx, tx, id, from, StatusFeedbackReceived, detail); err != nil {
			return err
		}
		now := nowString()
		for _, c := range corrections {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO corrections (session_id, original, corrected, category, note, submitted_at)
                 VALUES (?, ?, ?, ?, ?, ?)`,
				id, c.Original, c.Corrected, string(c.Category), nullableString(c.Note), now,
			); err != nil {
				return fmt.Errorf("insert correction: %w", err)
			}
		}
		return nil
	})
}

// Corrections returns the session's corrections in submission order.
func (s *Store) Corrections(ctx context.Context, id string) ([]Correction, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, original, corrected, category, note, submitted_at
         FROM corrections WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("list corrections: %w", err)
	}
	defer rows.Close()

	var out []Correction
	for rows.Next() {
		var (
			c         Correction
			category  string
			note      sql.NullString
			submitted string
		)
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Original, &c.Corrected, &category, &note, &submitted); err != nil {
			return nil, fmt.Errorf("scan correction: %w", err)
		}
		c.Category = CorrectionCategory(category)
		c.Note = note.String
		if ts, err := parseTimeString(submitted); err == nil {
			c.SubmittedAt = ts
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetOptOut records the consent-withdrawal marker. When from is a status a
// run holds (updating_brief) only the marker is written and the run routes
// the session to opted_out when it finishes; otherwise the session moves
// from -> opted_out in the same transaction. The marker keeps the first reason.
func (s *Store) SetOptOut(ctx context.Context, id string, from Status, reason string) error {
	inFlight := from.IsInFlight()
	if !inFlight && !CanTransition(from, StatusOptedOut) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, StatusOptedOut)
	}
	if inFlight && from != StatusUpdatingBrief {
		return fmt.Errorf("%w: cannot opt out while session is %s", services.ErrPreconditionFailed, from)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO opt_outs (session_id, reason, created_at) VALUES (?, ?, ?)
             ON CONFLICT(session_id) DO NOTHING`,
			id, nullableString(reason), nowString(),
		); err != nil {
			return fmt.Errorf("insert opt-out: %w", err)
		}
		if !inFlight {
			return transitionTx(ctx, tx, id, from, StatusOptedOut, TransitionDetail{
				Actor:    ActorInterviewee,
				Action:   ActionOptedOut,
				Metadata: map[string]any{"reason": reason},
			})
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET opted_out = 1, updated_at = ? WHERE id = ? AND status = ?`,
			nowString(), id, from)
		if err != nil {
			return fmt.Errorf("flag opt-out: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("%w: session %s is no longer %s", services.ErrPreconditionFailed, id, from)
		}
		return insertAudit(ctx, tx, ActorInterviewee, ActionOptedOut, id, map[string]any{
			"reason":  reason,
			"pending": true,
		})
	})
}

// OptOut returns the session's opt-out marker, or nil when none is set.
func (s *Store) OptOut(ctx context.Context, id string) (*OptOut, error) {
	ctx = ensureContext(ctx)
	var (
		marker  OptOut
		reason  sql.NullString
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, reason, created_at FROM opt_outs WHERE session_id = ?`, id,
	).Scan(&marker.SessionID, &reason, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get opt-out: %w", err)
	}
	marker.Reason = reason.String
	if ts, err := parseTimeString(created); err == nil {
		marker.CreatedAt = ts
	}
	return &marker, nil
}

func hasOptOutTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM opt_outs WHERE session_id = ?`, id).Scan(&count); err != nil {
		return false, fmt.Errorf("check opt-out: %w", err)
	}
	return count > 0, nil
}

package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"briefsmith/internal/services"
)

const runColumns = "id, session_id, kind, attempt_token, stage, attempts_json, outcome, started_at, finished_at, last_heartbeat"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run       Run
		kind      string
		stage     sql.NullString
		attempts  string
		outcome   sql.NullString
		started   string
		finished  sql.NullString
		heartbeat sql.NullString
	)
	if err := scanner.Scan(&run.ID, &run.SessionID, &kind, &run.AttemptToken, &stage, &attempts, &outcome, &started, &finished, &heartbeat); err != nil {
		return nil, err
	}
	run.Kind = RunKind(kind)
	run.Stage = stage.String
	run.Outcome = outcome.String
	run.Attempts = map[string]int{}
	if attempts != "" {
		_ = json.Unmarshal([]byte(attempts), &run.Attempts)
	}
	if ts, err := parseTimeString(started); err == nil {
		run.StartedAt = ts
	}
	run.FinishedAt = parseNullTime(finished)
	run.LastHeartbeat = parseNullTime(heartbeat)
	return &run, nil
}

// ReserveRun claims the single in-flight slot for (session, kind). When an
// unfinished run already holds the slot, the same attempt token gets that
// run back with replay=true and any other token gets services.ErrConflict.
// A finished run with the same token is also returned as a replay. When
// req.From is set the session moves From -> To in the same transaction.
func (s *Store) ReserveRun(ctx context.Context, req RunRequest) (*Run, bool, error) {
	if req.AttemptToken == "" {
		req.AttemptToken = uuid.NewString()
	}
	if req.From != "" && !CanTransition(req.From, req.To) {
		return nil, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.From, req.To)
	}

	var (
		run    *Run
		replay bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		run, replay = nil, false
		existing, err := scanRun(tx.QueryRowContext(ctx,
			`SELECT `+runColumns+` FROM runs WHERE session_id = ? AND kind = ? AND finished_at IS NULL`,
			req.SessionID, req.Kind))
		switch {
		case err == nil:
			if existing.AttemptToken == req.AttemptToken {
				run, replay = existing, true
				return nil
			}
			return fmt.Errorf("%w: %s run %d already in flight for session %s", services.ErrConflict, req.Kind, existing.ID, req.SessionID)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check in-flight run: %w", err)
		}

		previous, err := scanRun(tx.QueryRowContext(ctx,
			`SELECT `+runColumns+` FROM runs WHERE session_id = ? AND kind = ? AND attempt_token = ? ORDER BY id DESC LIMIT 1`,
			req.SessionID, req.Kind, req.AttemptToken))
		if err == nil {
			run, replay = previous, true
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check replayed run: %w", err)
		}

		if req.From != "" {
			if err := transitionTx(ctx, tx, req.SessionID, req.From, req.To, TransitionDetail{
				Actor:    req.Actor,
				Metadata: req.Metadata,
			}); err != nil {
				return err
			}
		}

		now := nowString()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO runs (session_id, kind, attempt_token, stage, started_at, last_heartbeat)
             VALUES (?, ?, ?, ?, ?, ?)`,
			req.SessionID, req.Kind, req.AttemptToken, nullableString(req.Stage), now, now)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s run already in flight for session %s", services.ErrConflict, req.Kind, req.SessionID)
			}
			return fmt.Errorf("insert run: %w", err)
		}
		runID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("run id: %w", err)
		}
		if err := insertAudit(ctx, tx, req.Actor, ActionRunStarted, req.SessionID, map[string]any{
			"run_id":        runID,
			"kind":          string(req.Kind),
			"attempt_token": req.AttemptToken,
		}); err != nil {
			return err
		}
		run, err = scanRun(tx.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
		if err != nil {
			return fmt.Errorf("reload run: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return run, replay, nil
}

// FinishRun records the run's terminal outcome. Finishing an already
// finished run is a no-op.
func (s *Store) FinishRun(ctx context.Context, runID int64, outcome string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		run, err := scanRun(tx.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("run", strconv.FormatInt(runID, 10))
		}
		if err != nil {
			return fmt.Errorf("get run: %w", err)
		}
		if run.Finished() {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE runs SET finished_at = ?, outcome = ? WHERE id = ? AND finished_at IS NULL`,
			nowString(), outcome, runID); err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		action := ActionRunFinished
		if outcome == OutcomeInterrupted {
			action = ActionRunInterrupted
		}
		return insertAudit(ctx, tx, ActorSystem, action, run.SessionID, map[string]any{
			"run_id":   runID,
			"kind":     string(run.Kind),
			"outcome":  outcome,
			"stage":    run.Stage,
			"attempts": run.Attempts,
		})
	})
}

// RecordStageAttempt marks the stage the run is executing and its attempt number.
func (s *Store) RecordStageAttempt(ctx context.Context, runID int64, stage string, attempt int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx, `SELECT attempts_json FROM runs WHERE id = ?`, runID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("run", strconv.FormatInt(runID, 10))
		}
		if err != nil {
			return fmt.Errorf("read run attempts: %w", err)
		}
		attempts := map[string]int{}
		if raw != "" {
			_ = json.Unmarshal([]byte(raw), &attempts)
		}
		attempts[stage] = attempt
		encoded, err := json.Marshal(attempts)
		if err != nil {
			return fmt.Errorf("encode run attempts: %w", err)
		}
		now := nowString()
		if _, err := tx.ExecContext(ctx,
			`UPDATE runs SET stage = ?, attempts_json = ?, last_heartbeat = ? WHERE id = ?`,
			stage, string(encoded), now, runID); err != nil {
			return fmt.Errorf("record stage attempt: %w", err)
		}
		return nil
	})
}

// HeartbeatRun refreshes the run's last heartbeat.
func (s *Store) HeartbeatRun(ctx context.Context, runID int64) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE runs SET last_heartbeat = ? WHERE id = ? AND finished_at IS NULL`,
		nowString(), runID); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// GetRun fetches a run by ID.
func (s *Store) GetRun(ctx context.Context, runID int64) (*Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ensureContext(ctx), `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("run", strconv.FormatInt(runID, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ActiveRun returns the unfinished run for (session, kind), or nil.
func (s *Store) ActiveRun(ctx context.Context, sessionID string, kind RunKind) (*Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+runColumns+` FROM runs WHERE session_id = ? AND kind = ? AND finished_at IS NULL`,
		sessionID, kind))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active run: %w", err)
	}
	return run, nil
}

// ActiveRuns lists unfinished runs for a session, or for every session when
// sessionID is empty.
func (s *Store) ActiveRuns(ctx context.Context, sessionID string) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE finished_at IS NULL`
	var args []any
	if sessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	return s.queryRuns(ctx, query+` ORDER BY id`, args...)
}

// StaleRuns lists unfinished runs whose last heartbeat is older than cutoff.
func (s *Store) StaleRuns(ctx context.Context, cutoff time.Time) ([]*Run, error) {
	return s.queryRuns(ctx,
		`SELECT `+runColumns+` FROM runs
         WHERE finished_at IS NULL AND COALESCE(last_heartbeat, started_at) < ? ORDER BY id`,
		formatTime(cutoff))
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]*Run, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

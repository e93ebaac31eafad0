package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"briefsmith/internal/services"
)

const sessionColumns = "id, user_id, company_name, leader_name, leader_title, interviewee_email, source_urls_json, has_upload, upload_key, status, current_brief_version, sources_failed_json, selected_questions_json, quality_score, error_message, packet_sent_at, opted_out, created_at, updated_at"

const defaultListLimit = 100

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		sess             Session
		leaderTitle      sql.NullString
		intervieweeEmail sql.NullString
		sourceURLs       string
		hasUpload        int
		uploadKey        sql.NullString
		status           string
		sourcesFailed    string
		selected         string
		qualityScore     sql.NullInt64
		errorMessage     sql.NullString
		packetSentAt     sql.NullString
		optedOut         int
		createdRaw       string
		updatedRaw       string
	)
	if err := scanner.Scan(
		&sess.ID,
		&sess.UserID,
		&sess.CompanyName,
		&sess.LeaderName,
		&leaderTitle,
		&intervieweeEmail,
		&sourceURLs,
		&hasUpload,
		&uploadKey,
		&status,
		&sess.CurrentBriefVersion,
		&sourcesFailed,
		&selected,
		&qualityScore,
		&errorMessage,
		&packetSentAt,
		&optedOut,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	sess.LeaderTitle = leaderTitle.String
	sess.IntervieweeEmail = intervieweeEmail.String
	sess.SourceURLs = decodeStrings(sourceURLs)
	sess.HasUpload = hasUpload != 0
	sess.UploadKey = uploadKey.String
	sess.Status = Status(status)
	sess.SourcesFailed = decodeStrings(sourcesFailed)
	sess.SelectedQuestions = decodeStrings(selected)
	if qualityScore.Valid {
		score := int(qualityScore.Int64)
		sess.QualityScore = &score
	}
	sess.ErrorMessage = errorMessage.String
	sess.PacketSentAt = parseNullTime(packetSentAt)
	sess.OptedOut = optedOut != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		sess.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		sess.UpdatedAt = updated
	}
	return &sess, nil
}

// NewSessionID returns a 12-character hex identifier.
func NewSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Create inserts a session in status created and records session_created.
// A CreateToken the user already used yields ErrConflict; FindByCreateToken
// returns the earlier session.
func (s *Store) Create(ctx context.Context, in NewSession) (*Session, error) {
	if strings.TrimSpace(in.CompanyName) == "" || strings.TrimSpace(in.LeaderName) == "" {
		return nil, fmt.Errorf("%w: company name and leader name are required", services.ErrValidation)
	}
	if strings.TrimSpace(in.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is required", services.ErrValidation)
	}
	id := NewSessionID()
	now := nowString()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, user_id, company_name, leader_name, leader_title, interviewee_email,
                source_urls_json, has_upload, status, create_token, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, in.UserID, in.CompanyName, in.LeaderName, nullableString(in.LeaderTitle),
			nullableString(in.IntervieweeEmail), encodeStrings(in.SourceURLs), boolToInt(in.HasUpload),
			StatusCreated, nullableString(strings.TrimSpace(in.CreateToken)), now, now,
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: create token %q already used", services.ErrConflict, in.CreateToken)
			}
			return fmt.Errorf("insert session: %w", err)
		}
		return insertAudit(ctx, tx, in.UserID, ActionSessionCreated, id, map[string]any{
			"company_name": in.CompanyName,
			"leader_name":  in.LeaderName,
			"sources":      in.SourceURLs,
			"has_upload":   in.HasUpload,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Get fetches a session by ID.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// FindByCreateToken returns the session userID created with token.
func (s *Store) FindByCreateToken(ctx context.Context, userID, token string) (*Session, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? AND create_token = ?`,
		userID, strings.TrimSpace(token))
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("session with create token", token)
	}
	if err != nil {
		return nil, fmt.Errorf("find session by create token: %w", err)
	}
	return sess, nil
}

// GetStatus returns the polling view of a session.
func (s *Store) GetStatus(ctx context.Context, id string) (StatusView, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	latest, err := s.LatestVersions(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	runs, err := s.ActiveRuns(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	view := StatusView{
		SessionID:           sess.ID,
		Status:              sess.Status,
		CurrentBriefVersion: sess.CurrentBriefVersion,
		LatestVersions:      latest,
		ErrorMessage:        sess.ErrorMessage,
		QualityScore:        sess.QualityScore,
		SourcesFailed:       sess.SourcesFailed,
		OptedOut:            sess.OptedOut,
		UpdatedAt:           sess.UpdatedAt,
	}
	if len(runs) > 0 {
		view.ActiveRun = runs[0]
	}
	return view, nil
}

// ListByUser returns the user's sessions, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]Summary, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_name, leader_name, status, current_brief_version, created_at, updated_at
         FROM sessions WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum        Summary
			status     string
			createdRaw string
			updatedRaw string
		)
		if err := rows.Scan(&sum.ID, &sum.CompanyName, &sum.LeaderName, &status, &sum.CurrentBriefVersion, &createdRaw, &updatedRaw); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		sum.Status = Status(status)
		if created, err := parseTimeString(createdRaw); err == nil {
			sum.CreatedAt = created
		}
		if updated, err := parseTimeString(updatedRaw); err == nil {
			sum.UpdatedAt = updated
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Transition moves a session from one status to another when the stored
// status still equals from. The audit entry and any field updates are
// written in the same transaction.
func (s *Store) Transition(ctx context.Context, id string, from, to Status, detail TransitionDetail) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return transitionTx(ctx, tx, id, from, to, detail)
	})
}

func transitionTx(ctx context.Context, tx *sql.Tx, id string, from, to Status, detail TransitionDetail) error {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{to, nowString()}
	sets, args = appendFieldUpdate(sets, args, detail.Update)
	if to == StatusOptedOut {
		sets = append(sets, "opted_out = 1")
	}
	args = append(args, id, from)

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET `+strings.Join(sets, ", ")+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return fmt.Errorf("transition session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition rows affected: %w", err)
	}
	if affected == 0 {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("session", id)
		}
		if err != nil {
			return fmt.Errorf("read session status: %w", err)
		}
		return fmt.Errorf("%w: session %s is %s, expected %s", services.ErrPreconditionFailed, id, current, from)
	}

	action := detail.Action
	if action == "" {
		action = ActionStatusChanged
	}
	meta := make(map[string]any, len(detail.Metadata)+2)
	for k, v := range detail.Metadata {
		meta[k] = v
	}
	meta["from"] = string(from)
	meta["to"] = string(to)
	return insertAudit(ctx, tx, detail.Actor, action, id, meta)
}

// UpdateFields sets non-status attributes without touching the status.
func (s *Store) UpdateFields(ctx context.Context, id string, update FieldUpdate) error {
	if update.empty() {
		return nil
	}
	sets, args := appendFieldUpdate([]string{"updated_at = ?"}, []any{nowString()}, update)
	args = append(args, id)
	res, err := s.execWithRetry(ctx, `UPDATE sessions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update session fields: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return notFound("session", id)
	}
	return nil
}

func appendFieldUpdate(sets []string, args []any, u FieldUpdate) ([]string, []any) {
	if u.SourcesFailed != nil {
		sets = append(sets, "sources_failed_json = ?")
		args = append(args, encodeStrings(*u.SourcesFailed))
	}
	if u.SelectedQuestions != nil {
		sets = append(sets, "selected_questions_json = ?")
		args = append(args, encodeStrings(*u.SelectedQuestions))
	}
	if u.QualityScore != nil {
		sets = append(sets, "quality_score = ?")
		args = append(args, nullableInt(u.QualityScore))
	}
	if u.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, nullableString(*u.ErrorMessage))
	}
	if u.PacketSentAt != nil {
		sets = append(sets, "packet_sent_at = ?")
		args = append(args, nullableTime(u.PacketSentAt))
	}
	if u.CurrentBriefVersion != nil {
		sets = append(sets, "current_brief_version = ?")
		args = append(args, *u.CurrentBriefVersion)
	}
	if u.UploadKey != nil {
		sets = append(sets, "upload_key = ?")
		args = append(args, nullableString(*u.UploadKey))
	}
	return sets, args
}

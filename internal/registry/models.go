package registry

import (
	"strings"
	"time"
)

// RunKind names one of the pipelines a session can run.
type RunKind string

const (
	RunBrief     RunKind = "brief"
	RunRevision  RunKind = "revision"
	RunSynthesis RunKind = "synthesis"
)

// ArtifactKind names a versioned document family.
type ArtifactKind string

const (
	KindBrief     ArtifactKind = "brief"
	KindPacket    ArtifactKind = "packet"
	KindSynthesis ArtifactKind = "synthesis"
	KindSources   ArtifactKind = "sources"
)

// Valid reports whether k is a known artifact kind.
func (k ArtifactKind) Valid() bool {
	switch k {
	case KindBrief, KindPacket, KindSynthesis, KindSources:
		return true
	}
	return false
}

// Run outcomes recorded when a run finishes.
const (
	OutcomeSucceeded   = "succeeded"
	OutcomeFailed      = "failed"
	OutcomeInterrupted = "interrupted"
	OutcomeOptedOut    = "opted_out"
)

// Audit actors that are not user IDs.
const (
	ActorSystem      = "system"
	ActorInterviewee = "interviewee"
)

// Audit actions.
const (
	ActionSessionCreated       = "session_created"
	ActionStatusChanged        = "status_changed"
	ActionSourcesIngested      = "sources_ingested"
	ActionBriefGenerated       = "brief_generated"
	ActionQualityChecked       = "quality_checked"
	ActionPacketSent           = "packet_sent"
	ActionConsentRecorded      = "consent_recorded"
	ActionCorrectionsSubmitted = "corrections_submitted"
	ActionOptedOut             = "opted_out"
	ActionBriefUpdated         = "brief_updated"
	ActionSynthesisGenerated   = "synthesis_generated"
	ActionRunStarted           = "run_started"
	ActionRunFinished          = "run_finished"
	ActionRunInterrupted       = "run_interrupted"
)

// Session is one interview-preparation engagement.
type Session struct {
	ID                  string
	UserID              string
	CompanyName         string
	LeaderName          string
	LeaderTitle         string
	IntervieweeEmail    string
	SourceURLs          []string
	HasUpload           bool
	UploadKey           string
	Status              Status
	CurrentBriefVersion int
	SourcesFailed       []string
	SelectedQuestions   []string
	QualityScore        *int
	ErrorMessage        string
	PacketSentAt        *time.Time
	OptedOut            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewSession carries the caller-supplied attributes of a session.
type NewSession struct {
	UserID           string
	CompanyName      string
	LeaderName       string
	LeaderTitle      string
	IntervieweeEmail string
	SourceURLs       []string
	HasUpload        bool
	// CreateToken makes creation idempotent per user; empty disables it.
	CreateToken string
}

// Summary is the list view of a session.
type Summary struct {
	ID                  string
	CompanyName         string
	LeaderName          string
	Status              Status
	CurrentBriefVersion int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// StatusView is what a polling client needs to render progress.
type StatusView struct {
	SessionID           string
	Status              Status
	CurrentBriefVersion int
	LatestVersions      map[ArtifactKind]int
	ActiveRun           *Run
	ErrorMessage        string
	QualityScore        *int
	SourcesFailed       []string
	OptedOut            bool
	UpdatedAt           time.Time
}

// FieldUpdate sets non-status session attributes. Nil fields are left alone.
type FieldUpdate struct {
	SourcesFailed       *[]string
	SelectedQuestions   *[]string
	QualityScore        *int
	ErrorMessage        *string
	PacketSentAt        *time.Time
	CurrentBriefVersion *int
	UploadKey           *string
}

func (u FieldUpdate) empty() bool {
	return u.SourcesFailed == nil && u.SelectedQuestions == nil && u.QualityScore == nil &&
		u.ErrorMessage == nil && u.PacketSentAt == nil && u.CurrentBriefVersion == nil && u.UploadKey == nil
}

// TransitionDetail describes who moved a session and why.
type TransitionDetail struct {
	Actor string
	// Action overrides the default status_changed audit action.
	Action   string
	Metadata map[string]any
	Update   FieldUpdate
}

// CorrectionCategory classifies a correction.
type CorrectionCategory string

const (
	CategoryFactualError   CorrectionCategory = "factual_error"
	CategoryMissingContext CorrectionCategory = "missing_context"
	CategoryOutdated       CorrectionCategory = "outdated"
	CategoryNeedsNuance    CorrectionCategory = "needs_nuance"
)

// ParseCategory normalizes a category string. Empty input means factual_error.
func ParseCategory(value string) (CorrectionCategory, bool) {
	switch c := CorrectionCategory(strings.ToLower(strings.TrimSpace(value))); c {
	case "":
		return CategoryFactualError, true
	case CategoryFactualError, CategoryMissingContext, CategoryOutdated, CategoryNeedsNuance:
		return c, true
	}
	return "", false
}

// Correction is a human-submitted amendment to a generated brief.
type Correction struct {
	ID          int64
	SessionID   string
	Original    string
	Corrected   string
	Category    CorrectionCategory
	Note        string
	SubmittedAt time.Time
}

// OptOut is the consent-withdrawal marker for a session.
type OptOut struct {
	SessionID string
	Reason    string
	CreatedAt time.Time
}

// Run is one execution of a pipeline for a session.
type Run struct {
	ID            int64
	SessionID     string
	Kind          RunKind
	AttemptToken  string
	Stage         string
	Attempts      map[string]int
	Outcome       string
	StartedAt     time.Time
	FinishedAt    *time.Time
	LastHeartbeat *time.Time
}

// Finished reports whether the run has a terminal outcome.
func (r *Run) Finished() bool {
	return r != nil && r.FinishedAt != nil
}

// RunRequest reserves a run and optionally moves the session in the same
// transaction. From is the status the caller observed; an empty From skips
// the status change.
type RunRequest struct {
	SessionID    string
	Kind         RunKind
	AttemptToken string
	Actor        string
	Stage        string
	From         Status
	To           Status
	Metadata     map[string]any
}

// ArtifactRecord is the index row for one artifact version.
type ArtifactRecord struct {
	SessionID string
	Kind      ArtifactKind
	Version   int
	BlobKey   string
	SHA256    string
	Size      int64
	RunToken  string
	CreatedAt time.Time
}

// AuditEntry is one append-only audit record.
type AuditEntry struct {
	ID        int64
	Timestamp time.Time
	Actor     string
	Action    string
	SessionID string
	Detail    map[string]any
}

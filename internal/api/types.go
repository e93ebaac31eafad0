package api

import (
	"encoding/json"

	"briefsmith/internal/brief"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Session describes a session in a transport-friendly format.
type Session struct {
	ID                  string   `json:"sessionId"`
	CompanyName         string   `json:"companyName"`
	LeaderName          string   `json:"leaderName"`
	LeaderTitle         string   `json:"leaderTitle,omitempty"`
	IntervieweeEmail    string   `json:"intervieweeEmail,omitempty"`
	SourceURLs          []string `json:"urls"`
	HasUpload           bool     `json:"hasUpload"`
	Uploaded            bool     `json:"uploaded"`
	Status              string   `json:"status"`
	CurrentBriefVersion int      `json:"currentBriefVersion"`
	SourcesFailed       []string `json:"sourcesFailed,omitempty"`
	SelectedQuestions   []string `json:"selectedQuestions,omitempty"`
	QualityScore        *int     `json:"qualityScore,omitempty"`
	ErrorMessage        string   `json:"errorMessage,omitempty"`
	PacketSentAt        string   `json:"packetSentAt,omitempty"`
	OptedOut            bool     `json:"optedOut"`
	CreatedAt           string   `json:"createdAt,omitempty"`
	UpdatedAt           string   `json:"updatedAt,omitempty"`
}

// SessionSummary is the list view of a session.
type SessionSummary struct {
	ID                  string `json:"sessionId"`
	CompanyName         string `json:"companyName"`
	LeaderName          string `json:"leaderName"`
	Status              string `json:"status"`
	CurrentBriefVersion int    `json:"currentBriefVersion"`
	CreatedAt           string `json:"createdAt,omitempty"`
	UpdatedAt           string `json:"updatedAt,omitempty"`
}

// Run describes one pipeline run.
type Run struct {
	ID            int64          `json:"id"`
	Kind          string         `json:"kind"`
	AttemptToken  string         `json:"attemptToken"`
	Stage         string         `json:"stage,omitempty"`
	Attempts      map[string]int `json:"attempts,omitempty"`
	Outcome       string         `json:"outcome,omitempty"`
	StartedAt     string         `json:"startedAt,omitempty"`
	FinishedAt    string         `json:"finishedAt,omitempty"`
	LastHeartbeat string         `json:"lastHeartbeat,omitempty"`
}

// StatusView is the polling payload for a session.
type StatusView struct {
	SessionID           string         `json:"sessionId"`
	Status              string         `json:"status"`
	CurrentBriefVersion int            `json:"currentBriefVersion"`
	LatestVersions      map[string]int `json:"latestVersions"`
	ActiveRun           *Run           `json:"activeRun,omitempty"`
	ErrorMessage        string         `json:"errorMessage,omitempty"`
	QualityScore        *int           `json:"qualityScore,omitempty"`
	SourcesFailed       []string       `json:"sourcesFailed,omitempty"`
	OptedOut            bool           `json:"optedOut"`
	UpdatedAt           string         `json:"updatedAt,omitempty"`
}

// ArtifactVersion describes one stored artifact version.
type ArtifactVersion struct {
	Kind      string `json:"kind"`
	Version   int    `json:"version"`
	SHA256    string `json:"sha256"`
	Size      int64  `json:"size"`
	RunToken  string `json:"runToken,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// AuditEntry is one audit trail record.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Timestamp string         `json:"timestamp"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// SessionResponse wraps a session with its status view.
type SessionResponse struct {
	Session Session    `json:"session"`
	Status  StatusView `json:"status"`
}

// SessionListResponse wraps the caller's sessions.
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// ArtifactResponse carries one artifact version.
type ArtifactResponse struct {
	SessionID string          `json:"sessionId"`
	Kind      string          `json:"kind"`
	Version   int             `json:"version"`
	Content   json.RawMessage `json:"content"`
}

// ArtifactVersionsResponse lists the versions of one artifact kind.
type ArtifactVersionsResponse struct {
	Versions []ArtifactVersion `json:"versions"`
}

// AuditResponse wraps a session's audit trail.
type AuditResponse struct {
	Entries []AuditEntry `json:"entries"`
}

// TriggerResponse is returned by triggers that start a run.
type TriggerResponse struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Run       *Run   `json:"run,omitempty"`
}

// PacketResponse is the interviewee view of a sent packet.
type PacketResponse struct {
	SessionID string       `json:"sessionId"`
	Version   int          `json:"version"`
	Status    string       `json:"status"`
	Packet    brief.Packet `json:"packet"`
}

// FeedbackResponse acknowledges an interviewee submission.
type FeedbackResponse struct {
	Message             string `json:"message"`
	Status              string `json:"status"`
	CorrectionsReceived int    `json:"correctionsReceived"`
	QuestionsSelected   int    `json:"questionsSelected"`
}

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	CompanyName      string   `json:"companyName"`
	LeaderName       string   `json:"leaderName"`
	LeaderTitle      string   `json:"leaderTitle,omitempty"`
	IntervieweeEmail string   `json:"intervieweeEmail,omitempty"`
	SourceURLs       []string `json:"urls"`
	HasUpload        bool     `json:"hasUpload,omitempty"`
}

// CorrectionInput is one correction from the interviewee form.
type CorrectionInput struct {
	Original  string `json:"originalAssertion"`
	Corrected string `json:"correction"`
	Category  string `json:"correctionType,omitempty"`
	Note      string `json:"note,omitempty"`
}

// FeedbackRequest is the body of POST /api/feedback/{id}.
type FeedbackRequest struct {
	Corrections       []CorrectionInput `json:"corrections,omitempty"`
	SelectedQuestions []string          `json:"selectedQuestions,omitempty"`
	OptOut            bool              `json:"optOut,omitempty"`
	OptOutReason      string            `json:"optOutReason,omitempty"`
}

// SynthesisRequest is the body of POST /api/sessions/{id}/synthesis.
type SynthesisRequest struct {
	KeyInsights     []string `json:"keyInsights,omitempty"`
	Surprises       []string `json:"surprises,omitempty"`
	Constraints     []string `json:"constraints,omitempty"`
	FollowUpActions []string `json:"followUpActions,omitempty"`
	RawNotes        string   `json:"rawNotes,omitempty"`
}

// PipelineStatus summarizes run execution state.
type PipelineStatus struct {
	Running    bool   `json:"running"`
	ActiveRuns int    `json:"activeRuns"`
	LastError  string `json:"lastError,omitempty"`
}

// CheckStatus is one preflight result.
type CheckStatus struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	BlobBackend  string         `json:"blobBackend"`
	AuthMode     string         `json:"authMode"`
	Pipeline     PipelineStatus `json:"pipeline"`
	Checks       []CheckStatus  `json:"checks"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

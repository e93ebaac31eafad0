package brief

import (
	"strings"
	"time"
)

// SynthesisNotes are the interviewer's post-call notes.
type SynthesisNotes struct {
	KeyInsights     []string `json:"keyInsights,omitempty"`
	Surprises       []string `json:"surprises,omitempty"`
	Constraints     []string `json:"constraints,omitempty"`
	FollowUpActions []string `json:"followUpActions,omitempty"`
	RawNotes        string   `json:"rawNotes,omitempty"`
}

// IsEmpty reports whether no note of any kind was supplied.
func (n SynthesisNotes) IsEmpty() bool {
	return len(n.KeyInsights) == 0 && len(n.Surprises) == 0 && len(n.Constraints) == 0 &&
		len(n.FollowUpActions) == 0 && strings.TrimSpace(n.RawNotes) == ""
}

// Constraint is one entry in the synthesis constraint map.
type Constraint struct {
	Constraint string `json:"constraint"`
	Type       string `json:"type,omitempty"`
	Confirmed  bool   `json:"confirmed"`
}

// Tension is a strategic tension surfaced during the interview.
type Tension struct {
	Tension     string `json:"tension"`
	RiskLevel   string `json:"riskLevel,omitempty"`
	Description string `json:"description,omitempty"`
}

// Opportunity is a candidate area for AI-assisted improvement.
type Opportunity struct {
	Area            string `json:"area"`
	Description     string `json:"description,omitempty"`
	EstimatedImpact string `json:"estimatedImpact,omitempty"`
}

// Synthesis is the post-call document generated from notes and the brief.
type Synthesis struct {
	GeneratedAt         time.Time      `json:"generatedAt"`
	BriefVersion        int            `json:"briefVersion"`
	Company             CompanyHeader  `json:"companyProfile"`
	Summary             string         `json:"summary"`
	Constraints         []Constraint   `json:"constraintMap,omitempty"`
	StrategicTensions   []Tension      `json:"strategicTensions,omitempty"`
	Opportunities       []Opportunity  `json:"aiOpportunities,omitempty"`
	UnresolvedQuestions []string       `json:"unresolvedQuestions,omitempty"`
	KeyDeltas           []string       `json:"keyDeltasFromProfile,omitempty"`
	Notes               SynthesisNotes `json:"notes"`
}

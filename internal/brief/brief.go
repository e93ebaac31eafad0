package brief

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Phase groups interview questions by where they fall in the conversation.
type Phase string

const (
	PhaseOpening   Phase = "opening"
	PhaseDeepDive  Phase = "deep_dive"
	PhaseStrategic Phase = "strategic"
	PhaseClosing   Phase = "closing"
)

// Phases lists every phase a complete question set covers, in interview order.
func Phases() []Phase {
	return []Phase{PhaseOpening, PhaseDeepDive, PhaseStrategic, PhaseClosing}
}

// CompanyHeader identifies the company the brief is about.
type CompanyHeader struct {
	Name     string `json:"name"`
	Industry string `json:"industry,omitempty"`
	Region   string `json:"region,omitempty"`
	Stage    string `json:"stage,omitempty"`
}

// Hypothesis is a statement with a Low/Medium/High confidence label.
type Hypothesis struct {
	Text       string `json:"text"`
	Confidence string `json:"confidence,omitempty"`
}

// KeyPoint is one "what we think we know" assertion.
type KeyPoint struct {
	Assertion      string `json:"assertion"`
	Confidence     string `json:"confidence,omitempty"`
	SourceType     string `json:"sourceType,omitempty"`
	Source         string `json:"source,omitempty"`
	WasCorrection  bool   `json:"wasCorrection,omitempty"`
	CorrectionNote string `json:"correctionNote,omitempty"`
}

// Question is one interviewer question with its coaching material.
type Question struct {
	ID          string `json:"id"`
	Text        string `json:"question"`
	FollowUp    string `json:"followUpStem,omitempty"`
	Objective   string `json:"objective,omitempty"`
	CoachingCue string `json:"coachingCue,omitempty"`
	Phase       Phase  `json:"phase,omitempty"`
}

// Brief is the interviewer-facing preparation document.
type Brief struct {
	Title               string        `json:"title"`
	GeneratedAt         time.Time     `json:"generatedAt"`
	Company             CompanyHeader `json:"companyHeader"`
	ExecutiveSummary    string        `json:"executiveSummary"`
	MarketContext       string        `json:"marketContext,omitempty"`
	RevenueModel        Hypothesis    `json:"revenueModelHypothesis"`
	KeyPoints           []KeyPoint    `json:"whatWeThinkWeKnow"`
	KnowledgeGaps       []string      `json:"knowledgeGaps,omitempty"`
	Questions           []Question    `json:"questions"`
	SelectedQuestionIDs []string      `json:"selectedQuestionIds,omitempty"`
	OpeningCue          string        `json:"openingCoachingCue,omitempty"`
	ClosingProtocol     string        `json:"closingProtocol,omitempty"`
}

// Validate rejects briefs that are missing the parts every consumer relies on.
func (b Brief) Validate() error {
	var problems []string
	if strings.TrimSpace(b.ExecutiveSummary) == "" {
		problems = append(problems, "executive summary is empty")
	}
	if len(b.Questions) == 0 {
		problems = append(problems, "no questions")
	}
	for i, q := range b.Questions {
		if strings.TrimSpace(q.Text) == "" {
			problems = append(problems, fmt.Sprintf("question %d has no text", i+1))
		}
	}
	if len(problems) > 0 {
		return errors.New("invalid brief: " + strings.Join(problems, "; "))
	}
	return nil
}

// Field is a piece of brief text paired with where it lives in the document.
type Field struct {
	Location string
	Text     string
}

// Fields enumerates every assertion-bearing text in the brief. Locations use
// a dotted path with zero-based indexes, e.g. "keyPoints[2].assertion".
func (b Brief) Fields() []Field {
	fields := make([]Field, 0, 4+len(b.KeyPoints)+len(b.Questions)*2+len(b.KnowledgeGaps))
	add := func(location, text string) {
		if strings.TrimSpace(text) != "" {
			fields = append(fields, Field{Location: location, Text: text})
		}
	}
	add("executiveSummary", b.ExecutiveSummary)
	add("marketContext", b.MarketContext)
	add("revenueModelHypothesis.text", b.RevenueModel.Text)
	for i, kp := range b.KeyPoints {
		add(fmt.Sprintf("keyPoints[%d].assertion", i), kp.Assertion)
	}
	for i, gap := range b.KnowledgeGaps {
		add(fmt.Sprintf("knowledgeGaps[%d]", i), gap)
	}
	for i, q := range b.Questions {
		add(fmt.Sprintf("questions[%d].question", i), q.Text)
		add(fmt.Sprintf("questions[%d].objective", i), q.Objective)
	}
	return fields
}

// QuestionIDs returns the IDs of every question, in document order.
func (b Brief) QuestionIDs() []string {
	ids := make([]string, 0, len(b.Questions))
	for _, q := range b.Questions {
		if q.ID != "" {
			ids = append(ids, q.ID)
		}
	}
	return ids
}

package testsupport

import (
	"fmt"
	"time"

	"briefsmith/internal/brief"
)

// SampleBrief returns a brief that passes the default quality gate: six
// open questions covering every phase, each with full coaching material.
func SampleBrief(company string) brief.Brief {
	phases := []brief.Phase{
		brief.PhaseOpening,
		brief.PhaseDeepDive,
		brief.PhaseDeepDive,
		brief.PhaseStrategic,
		brief.PhaseStrategic,
		brief.PhaseClosing,
	}
	questions := make([]brief.Question, 0, len(phases))
	for i, phase := range phases {
		questions = append(questions, brief.Question{
			ID:          fmt.Sprintf("q%d", i+1),
			Text:        fmt.Sprintf("How does %s approach priority %d?", company, i+1),
			FollowUp:    "Can you walk me through an example?",
			Objective:   fmt.Sprintf("Understand priority %d", i+1),
			CoachingCue: "Let them finish before following up.",
			Phase:       phase,
		})
	}
	return brief.Brief{
		Title:            company + " leadership conversation",
		GeneratedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Company:          brief.CompanyHeader{Name: company, Industry: "Logistics"},
		ExecutiveSummary: company + " operates a regional freight network serving retailers.",
		MarketContext:    "Freight demand is recovering after two flat years.",
		RevenueModel:     brief.Hypothesis{Text: "Per-shipment fees with annual contracts", Confidence: "Medium"},
		KeyPoints: []brief.KeyPoint{
			{Assertion: "The company was founded in 2015", Confidence: "High", SourceType: "public", Source: "company site"},
			{Assertion: "Revenue grew 40% last year", Confidence: "Low", SourceType: "inferred"},
			{Assertion: "The fleet has 200 trucks", Confidence: "Medium", SourceType: "public"},
		},
		KnowledgeGaps: []string{"Customer concentration is unknown"},
		Questions:     questions,
		OpeningCue:    "Start with their story.",
	}
}

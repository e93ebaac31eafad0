package quality

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"briefsmith/internal/brief"
)

const (
	maxScore           = 100
	minQuestions       = 5
	fewQuestionsCost   = 20
	questionIssueCost  = 10
	missingFieldCost   = 5
	missingPhaseCost   = 5
	maxReportedIssues  = 10
	issueSnippetLength = 60
)

var leadingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^why don'?t you`),
	regexp.MustCompile(`^isn'?t it true`),
	regexp.MustCompile(`^don'?t you think`),
	regexp.MustCompile(`^wouldn'?t you agree`),
	regexp.MustCompile(`^surely you`),
	regexp.MustCompile(`^obviously`),
	regexp.MustCompile(`your high \w+`),
	regexp.MustCompile(`your low \w+`),
	regexp.MustCompile(`your poor \w+`),
	regexp.MustCompile(`your declining`),
	regexp.MustCompile(`your struggling`),
}

// RuleGate scores the question set and passes briefs at or above Threshold.
type RuleGate struct {
	Threshold int
}

// NewRuleGate returns a RuleGate with the given pass threshold.
func NewRuleGate(threshold int) *RuleGate {
	return &RuleGate{Threshold: threshold}
}

// Evaluate implements Gate.
func (g *RuleGate) Evaluate(ctx context.Context, b brief.Brief) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	score, issues := Score(b.Questions)
	if len(issues) > maxReportedIssues {
		issues = issues[:maxReportedIssues]
	}
	return Result{Passed: score >= g.Threshold, Score: score, Issues: issues}, nil
}

// Score applies the question heuristics and returns a score in [0, 100]
// with every issue found.
func Score(questions []brief.Question) (int, []string) {
	score := maxScore
	var issues []string

	if len(questions) < minQuestions {
		issues = append(issues, fmt.Sprintf("too few questions: %d (minimum %d)", len(questions), minQuestions))
		score -= fewQuestionsCost
	}

	seen := make(map[brief.Phase]struct{}, 4)
	for _, q := range questions {
		textIssues := questionTextIssues(q.Text)
		issues = append(issues, textIssues...)
		score -= len(textIssues) * questionIssueCost

		snippet := clip(q.Text, 40)
		if strings.TrimSpace(q.FollowUp) == "" {
			issues = append(issues, fmt.Sprintf("missing follow-up stem for %q", snippet))
			score -= missingFieldCost
		}
		if strings.TrimSpace(q.Objective) == "" {
			issues = append(issues, fmt.Sprintf("missing objective for %q", snippet))
			score -= missingFieldCost
		}
		if strings.TrimSpace(q.CoachingCue) == "" {
			issues = append(issues, fmt.Sprintf("missing coaching cue for %q", snippet))
			score -= missingFieldCost
		}
		if q.Phase != "" {
			seen[q.Phase] = struct{}{}
		}
	}

	var missing []string
	for _, phase := range brief.Phases() {
		if _, ok := seen[phase]; !ok {
			missing = append(missing, string(phase))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		issues = append(issues, "missing question phases: "+strings.Join(missing, ", "))
		score -= len(missing) * missingPhaseCost
	}

	return max(0, score), issues
}

func questionTextIssues(text string) []string {
	lower := strings.ToLower(strings.TrimSpace(text))
	var issues []string
	for _, pattern := range leadingPatterns {
		if pattern.MatchString(lower) {
			issues = append(issues, fmt.Sprintf("leading pattern %q in question %q", pattern.String(), clip(text, issueSnippetLength)))
		}
	}
	if !strings.Contains(text, "?") {
		issues = append(issues, fmt.Sprintf("not a question (missing '?'): %q", clip(text, issueSnippetLength)))
	}
	return issues
}

func clip(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

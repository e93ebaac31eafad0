package registry

// Status is the lifecycle state of a session.
type Status string

const (
	StatusCreated         Status = "created"
	StatusIngesting       Status = "ingesting"
	StatusGenerating      Status = "generating"
	StatusQualityChecking Status = "quality_checking"
	StatusRegenerating    Status = "regenerating"
	StatusBriefReady      Status = "brief_ready"

	StatusIngestionFailed    Status = "ingestion_failed"
	StatusGenerationFailed   Status = "generation_failed"
	StatusQualityCheckFailed Status = "quality_check_failed"

	StatusPacketSent       Status = "packet_sent"
	StatusFeedbackReceived Status = "feedback_received"
	StatusOptedOut         Status = "opted_out"

	StatusUpdatingBrief     Status = "updating_brief"
	StatusBriefUpdated      Status = "brief_updated"
	StatusBriefUpdateFailed Status = "brief_update_failed"

	StatusSynthesizing    Status = "synthesizing"
	StatusSynthesisReady  Status = "synthesis_ready"
	StatusSynthesisFailed Status = "synthesis_failed"
)

var edges = map[Status][]Status{
	StatusCreated:            {StatusIngesting},
	StatusIngesting:          {StatusGenerating, StatusIngestionFailed},
	StatusGenerating:         {StatusQualityChecking, StatusGenerationFailed},
	StatusQualityChecking:    {StatusBriefReady, StatusRegenerating, StatusQualityCheckFailed},
	StatusRegenerating:       {StatusQualityChecking, StatusGenerationFailed},
	StatusIngestionFailed:    {StatusIngesting},
	StatusGenerationFailed:   {StatusIngesting},
	StatusQualityCheckFailed: {StatusIngesting},
	StatusBriefReady:         {StatusPacketSent, StatusSynthesizing},
	StatusPacketSent:         {StatusPacketSent, StatusFeedbackReceived, StatusOptedOut, StatusSynthesizing},
	StatusFeedbackReceived:   {StatusFeedbackReceived, StatusUpdatingBrief, StatusOptedOut, StatusSynthesizing},
	StatusUpdatingBrief:      {StatusBriefUpdated, StatusBriefUpdateFailed, StatusOptedOut},
	StatusBriefUpdateFailed:  {StatusUpdatingBrief, StatusOptedOut, StatusSynthesizing},
	StatusBriefUpdated:       {StatusPacketSent, StatusFeedbackReceived, StatusOptedOut, StatusSynthesizing},
	StatusSynthesizing:       {StatusSynthesisReady, StatusSynthesisFailed},
	StatusSynthesisReady:     {StatusSynthesizing},
	StatusSynthesisFailed:    {StatusSynthesizing},
	StatusOptedOut:           nil,
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusCreated, StatusIngesting, StatusGenerating, StatusQualityChecking, StatusRegenerating, StatusBriefReady,
		StatusIngestionFailed, StatusGenerationFailed, StatusQualityCheckFailed,
		StatusPacketSent, StatusFeedbackReceived, StatusOptedOut,
		StatusUpdatingBrief, StatusBriefUpdated, StatusBriefUpdateFailed,
		StatusSynthesizing, StatusSynthesisReady, StatusSynthesisFailed,
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := edges[s]
	return ok
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Successors returns the statuses reachable from s in one step.
func Successors(s Status) []Status {
	return append([]Status(nil), edges[s]...)
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s.Valid() && len(edges[s]) == 0
}

// IsBriefFailure reports whether s is one of the brief run failure statuses.
func (s Status) IsBriefFailure() bool {
	switch s {
	case StatusIngestionFailed, StatusGenerationFailed, StatusQualityCheckFailed:
		return true
	}
	return false
}

// IsInFlight reports whether s is a status a run holds while it executes.
func (s Status) IsInFlight() bool {
	_, ok := FailureStatusFor(s)
	return ok
}

// FailureStatusFor maps an in-flight status to the failure status a run
// lands in when that stage fails or is interrupted.
func FailureStatusFor(s Status) (Status, bool) {
	switch s {
	case StatusIngesting:
		return StatusIngestionFailed, true
	case StatusGenerating, StatusRegenerating:
		return StatusGenerationFailed, true
	case StatusQualityChecking:
		return StatusQualityCheckFailed, true
	case StatusUpdatingBrief:
		return StatusBriefUpdateFailed, true
	case StatusSynthesizing:
		return StatusSynthesisFailed, true
	}
	return "", false
}

// AcceptsFeedback reports whether interviewee corrections may be submitted in
// s. Feedback opens once the packet has been sent.
func (s Status) AcceptsFeedback() bool {
	switch s {
	case StatusPacketSent, StatusFeedbackReceived, StatusBriefUpdated:
		return true
	}
	return false
}

package pipeline

import (
	"fmt"

	"briefsmith/internal/registry"
)

// Event is an outcome reported by a run or trigger.
type Event string

const (
	EventStart         Event = "start"
	EventSucceeded     Event = "succeeded"
	EventFailed        Event = "failed"
	EventQualityPassed Event = "quality_passed"
	EventQualityFailed Event = "quality_failed"
	EventOptedOut      Event = "opted_out"
)

var startStatus = map[registry.RunKind]registry.Status{
	registry.RunBrief:     registry.StatusIngesting,
	registry.RunRevision:  registry.StatusUpdatingBrief,
	registry.RunSynthesis: registry.StatusSynthesizing,
}

var startableFrom = map[registry.RunKind][]registry.Status{
	registry.RunBrief: {
		registry.StatusCreated,
		registry.StatusIngestionFailed,
		registry.StatusGenerationFailed,
		registry.StatusQualityCheckFailed,
	},
	registry.RunRevision: {
		registry.StatusFeedbackReceived,
		registry.StatusBriefUpdateFailed,
	},
	registry.RunSynthesis: {
		registry.StatusBriefReady,
		registry.StatusPacketSent,
		registry.StatusFeedbackReceived,
		registry.StatusBriefUpdated,
		registry.StatusBriefUpdateFailed,
		registry.StatusSynthesisReady,
		registry.StatusSynthesisFailed,
	},
}

var successStatus = map[registry.Status]registry.Status{
	registry.StatusIngesting:     registry.StatusGenerating,
	registry.StatusGenerating:    registry.StatusQualityChecking,
	registry.StatusRegenerating:  registry.StatusQualityChecking,
	registry.StatusUpdatingBrief: registry.StatusBriefUpdated,
	registry.StatusSynthesizing:  registry.StatusSynthesisReady,
}

var runStatuses = map[registry.RunKind][]registry.Status{
	registry.RunBrief: {
		registry.StatusIngesting,
		registry.StatusGenerating,
		registry.StatusQualityChecking,
		registry.StatusRegenerating,
	},
	registry.RunRevision:  {registry.StatusUpdatingBrief},
	registry.RunSynthesis: {registry.StatusSynthesizing},
}

// CanStart reports whether a run of kind may start from status.
func CanStart(kind registry.RunKind, status registry.Status) bool {
	return contains(startableFrom[kind], status)
}

// Next returns the status a session moves to when event happens while a run
// of kind holds it in status. regenerationsLeft is how many more automatic
// regenerations the run may perform. Next never returns a status outside the
// registry edge table.
func Next(kind registry.RunKind, status registry.Status, event Event, regenerationsLeft int) (registry.Status, error) {
	to, ok := next(kind, status, event, regenerationsLeft)
	if !ok || !registry.CanTransition(status, to) {
		return "", fmt.Errorf("%w: %s run cannot handle %s while %s", registry.ErrInvalidTransition, kind, event, status)
	}
	return to, nil
}

func next(kind registry.RunKind, status registry.Status, event Event, regenerationsLeft int) (registry.Status, bool) {
	if event == EventStart {
		if !CanStart(kind, status) {
			return "", false
		}
		return startStatus[kind], true
	}
	if !contains(runStatuses[kind], status) {
		return "", false
	}
	switch event {
	case EventSucceeded:
		if status == registry.StatusQualityChecking {
			return "", false
		}
		to, ok := successStatus[status]
		return to, ok
	case EventFailed:
		return registry.FailureStatusFor(status)
	case EventQualityPassed:
		if status != registry.StatusQualityChecking {
			return "", false
		}
		return registry.StatusBriefReady, true
	case EventQualityFailed:
		if status != registry.StatusQualityChecking {
			return "", false
		}
		if regenerationsLeft > 0 {
			return registry.StatusRegenerating, true
		}
		return registry.StatusQualityCheckFailed, true
	case EventOptedOut:
		if status != registry.StatusUpdatingBrief {
			return "", false
		}
		return registry.StatusOptedOut, true
	}
	return "", false
}

func contains(statuses []registry.Status, status registry.Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

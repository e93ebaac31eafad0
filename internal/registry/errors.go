package registry

import (
	"fmt"

	"briefsmith/internal/services"
)

// ErrInvalidTransition is returned when a transition is not an allowed edge.
// It matches services.ErrPreconditionFailed under errors.Is.
var ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", services.ErrPreconditionFailed)

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, services.ErrNotFound)
}

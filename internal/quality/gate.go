package quality

import (
	"context"

	"briefsmith/internal/brief"
)

// Result is the outcome of evaluating one brief.
type Result struct {
	Passed bool
	Score  int
	Issues []string
}

// Gate evaluates a brief. Errors are retried by the caller's quality policy;
// a failing brief is reported through Result.Passed, not an error.
type Gate interface {
	Evaluate(ctx context.Context, b brief.Brief) (Result, error)
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(ctx context.Context, b brief.Brief) (Result, error)

// Evaluate calls f.
func (f GateFunc) Evaluate(ctx context.Context, b brief.Brief) (Result, error) {
	return f(ctx, b)
}

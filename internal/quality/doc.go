// Package quality decides whether a generated brief is good enough to show.
//
// Gate is the seam the pipeline consults; RuleGate is the default
// implementation, a deterministic 100-point heuristic over the question set.
package quality

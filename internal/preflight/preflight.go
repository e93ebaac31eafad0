package preflight

import (
	"context"

	"briefsmith/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Failed returns the subset of results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// RunAll executes all applicable preflight checks for the given config.
// The LLM check performs a live request and is skipped when no key is set.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	results = append(results, CheckStorage(cfg))

	if llmCfg := cfg.GetLLM(); llmCfg.APIKey != "" {
		results = append(results, CheckLLM(ctx, "LLM", llmCfg))
	} else {
		results = append(results, Result{Name: "LLM", Detail: "API key missing (set llm.api_key or OPENROUTER_API_KEY)"})
	}

	results = append(results, CheckNtfy(cfg.Notifications))
	results = append(results, CheckDelivery(cfg.Delivery))
	return results
}

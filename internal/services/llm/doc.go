// Package llm provides an OpenRouter-compatible chat completion client.
//
// The generation package builds briefs, packets, revisions, and syntheses on
// top of CompleteJSON. The client performs one HTTP exchange per call and
// classifies failures for the pipeline's retry policy: HTTP 408/429/5xx,
// timeouts, empty completions, and undecodable payloads are transient; other
// 4xx responses and a missing API key are not.
//
// DecodeLLMJSON tolerates the usual model formatting quirks (code fences,
// prose around a JSON object).
package llm

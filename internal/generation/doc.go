// Package generation produces briefs, interviewee packets, revised briefs,
// and post-call syntheses with a chat completion model.
//
// LLMGenerator is the production implementation. It sends the default
// prompts in prompts.go, decodes the JSON reply into the brief package
// types, and fills in fields the model tends to drop (question IDs, phases
// it misspells, timestamps). A reply that still fails brief.Validate is
// reported as a transient error so the stage retry policy asks again.
package generation

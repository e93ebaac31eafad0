// Package brief defines the documents the pipeline produces and consumes:
// the interviewer brief, the interviewee packet, the post-call synthesis, and
// the ingestion result that feeds generation.
//
// These are plain JSON-tagged structs. The artifact store persists them as
// opaque JSON; the generation, quality, and revision packages interpret them.
package brief

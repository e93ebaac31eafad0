// Package ingest turns a session's source URLs and optional uploaded document
// into the text chunks generation works from.
//
// URLs are fetched concurrently (bounded by Options.Concurrency) and HTML is
// reduced to readable text with golang.org/x/net/html, skipping navigation
// chrome and scripts. Each source is capped, split into overlapping word
// windows, and near-duplicate windows are dropped so boilerplate repeated
// across pages does not crowd the model context.
//
// A single failing URL never fails the stage; Ingest only returns an error
// when no source produced text.
package ingest

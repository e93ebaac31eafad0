// Package textutil provides text normalization, fingerprinting, and
// filename-token helpers shared by ingestion, revision, and the CLI.
//
// Normalization folds case and composes Unicode to NFC so that corrections
// typed by hand compare equal to generated brief text. Fingerprints are
// term-frequency vectors compared with cosine similarity; ingestion uses them
// to drop near-duplicate source chunks.
package textutil

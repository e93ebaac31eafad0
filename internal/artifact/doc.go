// Package artifact stores immutable, versioned session documents.
//
// Content lives in a blobstore.Store wrapped in a YAML front-matter envelope;
// the (session, kind, version) index lives in the registry database. A blob
// is written before its version is allocated, so any version a reader can
// see already has durable content.
package artifact

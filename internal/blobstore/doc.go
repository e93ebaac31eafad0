// Package blobstore persists opaque artifact and upload bytes under string
// keys. The filesystem backend writes through a temp file and rename so a key
// is either absent or complete; the S3 backend relies on PutObject atomicity.
package blobstore

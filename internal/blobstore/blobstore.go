package blobstore

import (
	"context"
	"fmt"
	"path"
	"strings"

	"briefsmith/internal/config"
	"briefsmith/internal/services"
)

// ErrNotFound is returned when a key has no stored object.
var ErrNotFound = fmt.Errorf("%w: blob", services.ErrNotFound)

// Store reads and writes immutable blobs.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Open returns the backend selected by cfg.Storage.Backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: blobstore requires configuration", services.ErrConfiguration)
	}
	switch cfg.Storage.Backend {
	case config.StorageS3:
		return NewS3(ctx, S3Options{
			Bucket:   cfg.Storage.S3Bucket,
			Region:   cfg.Storage.S3Region,
			Endpoint: cfg.Storage.S3Endpoint,
			Prefix:   cfg.Storage.S3Prefix,
		})
	case config.StorageFilesystem, "":
		return NewFilesystem(cfg.Paths.BlobDir)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", services.ErrConfiguration, cfg.Storage.Backend)
	}
}

// Key joins slash-separated key segments.
func Key(parts ...string) string {
	return path.Join(parts...)
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: blob key is empty", services.ErrValidation)
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: blob key %q must be relative", services.ErrValidation, key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return fmt.Errorf("%w: blob key %q has an invalid segment", services.ErrValidation, key)
		}
	}
	return nil
}

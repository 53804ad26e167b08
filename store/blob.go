package store

import (
	"context"
	"io"
)

// FileStore handles external binary payload storage for backends that keep
// variant payloads outside the database (the PostgreSQL store offloads to a
// FileStore when one is configured). Implementations live in store/blob:
// S3, Google Cloud Storage, and a local-disk caching wrapper.
type FileStore interface {
	// Upload stores content and returns a URI for later retrieval.
	Upload(ctx context.Context, filename, contentType string, content io.Reader) (uri string, err error)

	// Load returns a reader for the payload content.
	// The caller is responsible for closing the reader.
	Load(ctx context.Context, uri string) (io.ReadCloser, error)

	// Delete removes the payload from storage.
	Delete(ctx context.Context, uri string) error
}

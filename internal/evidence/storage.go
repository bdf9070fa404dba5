package evidence

import (
	"context"
	"io"
	"time"
)

// StorageDriver defines how photo evidence binaries are stored. The
// inspection core only ever references photos by id and URL; it never
// inspects file bytes.
type StorageDriver interface {
	// Save writes the content to the storage under key.
	Save(ctx context.Context, key string, body io.Reader, contentType string) error

	// Get returns a ReadCloser to stream the file back and its content type.
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)

	// Delete removes the file.
	Delete(ctx context.Context, key string) error

	// GenerateURL returns a public-facing URL for the key.
	GenerateURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

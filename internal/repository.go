package internal

import (
	"context"
	"io"
)

// Repository persists run artifacts (harvest logs, catalog documents).
// Implementations write to a local directory or an S3 bucket.
type Repository interface {
	Write(ctx context.Context, key string, reader io.Reader) error
}

// Package storage defines the blob store used to archive sweep reports.
// Implementations live in the local, gcs and memory subpackages.
package storage

import (
	"context"
	"io"
)

// BlobStore saves an object and returns a URI that locates it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Noop discards objects. It is used when report archiving is disabled.
type Noop struct{}

// PutObject drains r and returns an empty URI.
func (Noop) PutObject(_ context.Context, _ string, _ string, r io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	return "", nil
}

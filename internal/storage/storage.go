// Package storage defines the blob-store contract JACS documents and key
// material are persisted through, plus filesystem, in-memory, and S3
// adapters implementing it.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get and Rename when path does not exist.
var ErrNotFound = errors.New("storage: path not found")

// Store is the byte-level contract every persistence backend exposes. Paths
// are forward-slash-separated logical paths; each backend maps them onto its
// own namespace (a directory tree, a map, an S3 bucket).
type Store interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, data []byte) error
	Exists(ctx context.Context, path string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Rename(ctx context.Context, from, to string) error
}

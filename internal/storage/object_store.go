package storage

import (
	"context"
	"io"
)

// ObjectStore keeps uploaded dataset files. Keys use forward slashes.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data io.Reader) error

	GetObject(ctx context.Context, key string) (io.ReadCloser, error)

	DeleteObjects(ctx context.Context, prefix string) error

	// LocalDir returns a local directory holding the objects under prefix,
	// downloading them first if the store is remote.
	LocalDir(ctx context.Context, prefix string) (string, error)
}

// Package blob stores exported view snapshots under slash-separated keys.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a key has no blob.
var ErrNotFound = errors.New("blob not found")

type BlobStore interface {
	// Put writes content under key, replacing any previous blob.
	Put(ctx context.Context, key string, reader io.Reader) error

	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns the keys under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	Delete(ctx context.Context, key string) error
}

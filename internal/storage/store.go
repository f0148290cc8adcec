// Package storage persists the catalog and source statuses as JSON blobs.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("key not found in store")

// Blob keys.
const (
	KeyProjects = "projects"
	KeySources  = "sources"
)

// BlobStore is a key-value store of opaque blobs. Put replaces the whole value.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Close() error
}

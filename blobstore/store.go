// Package blobstore abstracts off-box storage for snapshot archival.
//
// The zone allocator writes save slots to the local filesystem; a Store is
// an optional second copy, an object bucket or another durable location a
// slot file can be pushed to and pulled back from.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a named object does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is a flat keyspace of immutable snapshot objects.
type Store interface {
	// Put writes the object under name. size may be -1 when unknown.
	Put(ctx context.Context, name string, r io.Reader, size int64) error

	// Get opens the object for reading and reports its size.
	Get(ctx context.Context, name string) (io.ReadCloser, int64, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, name string) error

	// List returns object names with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Package vault provides the object stores the remote resource server keeps
// its resources and history in.
package vault

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by Get when no object exists under the key.
var ErrObjectNotFound = errors.New("object not found")

// Store is a flat key/value object store. Keys are slash-separated paths
// such as "Patient/p1/_history/2".
type Store interface {
	// Put stores size bytes read from r under key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get writes the object stored under key to w.
	Get(ctx context.Context, key string, w io.Writer) error

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns every key starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// ValidateSetup verifies that the store is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}

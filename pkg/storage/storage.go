// Package storage keeps the bytes behind transient resources (reply audio,
// image previews) outside process memory: on local disk or in an
// S3-compatible bucket.
//
// Object names are forward-slash separated and relative to the store root.
package storage

import (
	"context"
	"io"
)

// Object describes a blob being written.
type Object struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Store is a blob store. Implementations are safe for concurrent use.
type Store interface {
	// Put writes the object, replacing any previous blob with the same name.
	Put(ctx context.Context, obj Object) error

	// Open returns a reader for the named blob. A missing blob yields an
	// error wrapping fs.ErrNotExist. The caller closes the reader.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes the named blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
}

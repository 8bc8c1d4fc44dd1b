// Package resource manages transient, explicitly released byte resources:
// reply audio and image previews that a player or a browser fetches by
// handle. Every handle is released exactly once; Live reports how many are
// still held so owners can be checked for leaks.
package resource

import (
	"context"
	"errors"
	"io"
)

// ErrReleased is returned for handles that were released or never created.
var ErrReleased = errors.New("resource: released")

// Handle identifies a live resource. The zero Handle means "none".
type Handle string

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool {
	return h == ""
}

// Info describes a live resource.
type Info struct {
	MIME string
	Size int64
}

// Factory creates and releases resources.
type Factory interface {
	// Create stores data and returns a new handle.
	Create(ctx context.Context, data []byte, mime string) (Handle, error)

	// Open returns the bytes behind h.
	Open(ctx context.Context, h Handle) (io.ReadCloser, error)

	// Stat returns the description of h, or ErrReleased.
	Stat(h Handle) (Info, error)

	// Release frees h. Releasing twice returns ErrReleased.
	Release(ctx context.Context, h Handle) error

	// Live returns the number of handles not yet released.
	Live() int
}

// ReadAll returns the bytes behind h.
func ReadAll(ctx context.Context, f Factory, h Handle) ([]byte, error) {
	rc, err := f.Open(ctx, h)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

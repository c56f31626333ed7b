package pool

import (
	"context"
	"io"
)

// Backend stores pool objects under slash separated names relative to the
// repository root. Missing objects are reported with errors matching
// fs.ErrNotExist.
type Backend interface {
	// Put stores data under name. Readers never observe a partial object.
	Put(ctx context.Context, name string, data []byte) error

	// Open returns a reader over the object
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Stat returns the object size
	Stat(ctx context.Context, name string) (int64, error)

	// Remove deletes the object
	Remove(ctx context.Context, name string) error

	// Walk calls fn for every object below dir. A missing dir is empty.
	Walk(ctx context.Context, dir string, fn func(name string, size int64) error) error
}

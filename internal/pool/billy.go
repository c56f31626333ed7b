package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// BillyBackend stores the pool on a go-billy filesystem
type BillyBackend struct {
	fs billy.Filesystem
}

// NewBillyBackend creates a backend over the given go-billy filesystem
func NewBillyBackend(fsys billy.Filesystem) *BillyBackend {
	return &BillyBackend{fs: fsys}
}

// NewOSBackend creates a backend rooted at a directory on disk
func NewOSBackend(root string) *BillyBackend {
	return &BillyBackend{fs: osfs.New(root)}
}

// NewMemoryBackend creates an in-memory backend
func NewMemoryBackend() *BillyBackend {
	return &BillyBackend{fs: memfs.New()}
}

// Put writes to a temporary file next to name and renames it into place
func (b *BillyBackend) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := path.Dir(name)
	if err := b.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("billy: mkdirall %q: %w", dir, err)
	}

	tmp, err := b.fs.TempFile(dir, ".incoming-")
	if err != nil {
		return fmt.Errorf("billy: tempfile in %q: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		b.fs.Remove(tmpName)
		return fmt.Errorf("billy: write %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		b.fs.Remove(tmpName)
		return fmt.Errorf("billy: close %q: %w", tmpName, err)
	}

	if err := b.fs.Rename(tmpName, name); err != nil {
		b.fs.Remove(tmpName)
		return fmt.Errorf("billy: rename %q: %w", name, err)
	}
	return nil
}

// Open implements Backend.Open
func (b *BillyBackend) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := b.fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("billy: open %q: %w", name, notExist(err))
	}
	return f, nil
}

// Stat implements Backend.Stat
func (b *BillyBackend) Stat(ctx context.Context, name string) (int64, error) {
	info, err := b.fs.Stat(name)
	if err != nil {
		return 0, fmt.Errorf("billy: stat %q: %w", name, notExist(err))
	}
	if info.IsDir() {
		return 0, fmt.Errorf("billy: stat %q: is a directory", name)
	}
	return info.Size(), nil
}

// Remove implements Backend.Remove
func (b *BillyBackend) Remove(ctx context.Context, name string) error {
	if err := b.fs.Remove(name); err != nil {
		return fmt.Errorf("billy: remove %q: %w", name, notExist(err))
	}
	return nil
}

// Walk implements Backend.Walk
func (b *BillyBackend) Walk(ctx context.Context, dir string, fn func(name string, size int64) error) error {
	if _, err := b.fs.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("billy: stat %q: %w", dir, err)
	}

	err := util.Walk(b.fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		return fn(filepath.ToSlash(p), info.Size())
	})
	if err != nil {
		return fmt.Errorf("billy: walk %q: %w", dir, err)
	}
	return nil
}

// notExist normalizes the various not-found errors of billy
// implementations to fs.ErrNotExist
func notExist(err error) error {
	if os.IsNotExist(err) && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%v: %w", err, fs.ErrNotExist)
	}
	return err
}

package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile writes data to a temporary file next to path, flushes it and
// renames it into place, creating directories as needed. Readers see
// either the old content or the new one.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, perm); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// SyncDir flushes directory entries (renames, creations) to disk
func SyncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// AtomicSymlink creates or replaces a symlink atomically by creating a
// temporary symlink and renaming it over the target.
func AtomicSymlink(source, target string) error {
	tempPath := target + ".new"
	os.Remove(tempPath) // leftover from an interrupted swap
	if err := os.Symlink(source, tempPath); err != nil {
		return fmt.Errorf("create symlink %s -> %s: %w", tempPath, source, err)
	}
	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s -> %s: %w", tempPath, target, err)
	}
	return SyncDir(filepath.Dir(target))
}

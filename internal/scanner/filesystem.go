package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"
)

// FileSystemScanner implements Scanner interface for filesystem scanning
type FileSystemScanner struct {
	// pattern filters paths relative to the scanned directory
	pattern string
}

// NewFileSystemScanner creates a new filesystem scanner. An empty pattern
// accepts every path; otherwise it is a doublestar glob such as
// "**/*_arm64.deb".
func NewFileSystemScanner(pattern string) (*FileSystemScanner, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}
	return &FileSystemScanner{pattern: pattern}, nil
}

// Scan recursively scans a directory for packages
func (s *FileSystemScanner) Scan(ctx context.Context, dir string) ([]ScannedPackage, error) {
	var packages []ScannedPackage

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	if !info.IsDir() {
		return []ScannedPackage{{Path: dir, Size: info.Size()}}, nil
	}

	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Check context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Skip directories
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		if s.pattern != "" {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			if ok, _ := doublestar.Match(s.pattern, filepath.ToSlash(rel)); !ok {
				return nil
			}
		}

		isDeb, err := IsDebPackage(path)
		if err != nil {
			logrus.Warnf("Failed to detect type for %s: %v", path, err)
			return nil
		}
		if !isDeb {
			return nil
		}

		logrus.Debugf("Found deb package: %s", path)

		packages = append(packages, ScannedPackage{
			Path: path,
			Size: info.Size(),
		})

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	logrus.Infof("Found %d packages in %s", len(packages), dir)
	return packages, nil
}

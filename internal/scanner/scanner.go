package scanner

import "context"

// ScannedPackage represents a package file found during scanning
type ScannedPackage struct {
	Path string
	Size int64
}

// Scanner interface for finding package archives to ingest
type Scanner interface {
	// Scan recursively scans a directory for packages. A file path
	// yields that file alone.
	Scan(ctx context.Context, dir string) ([]ScannedPackage, error)
}

// Package cache remembers extraction results by archive SHA256. Extraction
// is a pure function of archive content, so entries never go stale.
package cache

import (
	"context"
	"sync"

	"github.com/ralt/aptpool/internal/models"
)

// Cache stores extracted package records keyed by archive SHA256
type Cache interface {
	// Get returns the cached record, if any
	Get(ctx context.Context, sha256 string) (*models.Package, bool, error)

	// Put stores a record under its SHA256Sum
	Put(ctx context.Context, pkg *models.Package) error

	Close() error
}

// Memory is a process-local cache
type Memory struct {
	mu      sync.RWMutex
	records map[string]models.Package
}

// NewMemory creates an empty in-memory cache
func NewMemory() *Memory {
	return &Memory{records: make(map[string]models.Package)}
}

// Get implements Cache.Get
func (m *Memory) Get(ctx context.Context, sha256 string) (*models.Package, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pkg, ok := m.records[sha256]
	if !ok {
		return nil, false, nil
	}
	return &pkg, true, nil
}

// Put implements Cache.Put
func (m *Memory) Put(ctx context.Context, pkg *models.Package) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record := *pkg
	record.Filename = ""
	m.records[pkg.SHA256Sum] = record
	return nil
}

// Close implements Cache.Close
func (m *Memory) Close() error {
	return nil
}

// Len returns the number of cached records
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// New opens the cache selected by cfg
func New(cfg models.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "sqlite":
		return OpenSQLite(cfg.Path)
	default:
		return NewMemory(), nil
	}
}

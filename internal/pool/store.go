// Package pool owns the package archives of the repository.
//
// Archives are placed at deterministic paths derived from their control
// fields and are never rewritten: adding identical content again is a
// no-op, adding different content for an existing name/version/arch is
// refused. Removing an archive is an explicit retraction.
package pool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/ralt/aptpool/internal/debfile"
	"github.com/ralt/aptpool/internal/models"
	"github.com/ralt/aptpool/internal/utils"
	"github.com/sirupsen/logrus"
)

// Store manages package archives on a Backend
type Store struct {
	backend Backend
	config  *models.RepositoryConfig

	// serializes check-then-put so concurrent adds in one process cannot
	// both claim the same path
	mu sync.Mutex
}

// NewStore creates a pool store
func NewStore(backend Backend, config *models.RepositoryConfig) *Store {
	return &Store{
		backend: backend,
		config:  config,
	}
}

// Root returns the backend directory holding all archives of the component
func (s *Store) Root() string {
	return path.Join("pool", s.config.Component)
}

// Add stores an archive. Storing the same bytes twice succeeds without
// rewriting; storing different bytes for an existing name/version/arch
// fails with DuplicateVersionConflict.
func (s *Store) Add(ctx context.Context, data []byte) (*models.PoolEntry, error) {
	pkg, err := debfile.ParseReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	if !s.config.Supports(pkg.Architecture) {
		return nil, models.NewError(models.ErrUnsupportedArchitecture, pkg.Identity(),
			"architecture %q is not configured (have %s)", pkg.Architecture, strings.Join(s.config.Architectures, " "))
	}

	entry := &models.PoolEntry{
		Path:         Path(s.config.Component, pkg.Name, pkg.Version, pkg.Architecture),
		Name:         pkg.Name,
		Version:      pkg.Version,
		Architecture: pkg.Architecture,
		Size:         pkg.Size,
		SHA256Sum:    pkg.SHA256Sum,
	}
	log := logrus.WithFields(logrus.Fields{"package": entry.Identity(), "path": entry.Path})

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.checksum(ctx, entry.Path)
	switch {
	case err == nil:
		if existing.SHA256 != pkg.SHA256Sum {
			return nil, models.NewError(models.ErrDuplicateVersionConflict, entry.Identity(),
				"pool already holds %s with sha256 %s, refusing %s", entry.Path, existing.SHA256, pkg.SHA256Sum)
		}
		log.Debug("Archive already in pool")
		entry.Existing = true
		return entry, nil
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, &models.PoolError{Type: models.ErrFileOp, Key: entry.Path, Err: err}
	}

	if err := s.backend.Put(ctx, entry.Path, data); err != nil {
		return nil, &models.PoolError{Type: models.ErrFileOp, Key: entry.Path, Err: err}
	}

	log.Info("Added archive to pool")
	return entry, nil
}

// List returns the pool entries of an architecture ordered by path. An
// empty architecture lists everything. Archives whose file name does not
// follow the pool naming scheme carry no identity and are always listed;
// the index builder sorts them out after extraction.
func (s *Store) List(ctx context.Context, architecture string) ([]models.PoolEntry, error) {
	var entries []models.PoolEntry

	err := s.backend.Walk(ctx, s.Root(), func(name string, size int64) error {
		base := path.Base(name)
		if !strings.HasSuffix(base, ".deb") {
			return nil
		}

		entry := models.PoolEntry{Path: name, Size: size}
		if n, v, a, ok := ParseFileName(base); ok {
			entry.Name, entry.Version, entry.Architecture = n, v, a
		} else {
			logrus.Debugf("Pool file %s does not follow the naming scheme", name)
		}

		if architecture == "" || entry.Architecture == "" || entry.Architecture == architecture {
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, &models.PoolError{Type: models.ErrFileOp, Key: s.Root(), Err: err}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

// Retract removes an archive from the pool. Published generations keep
// referencing it until the next publish.
func (s *Store) Retract(ctx context.Context, name, version, arch string) error {
	if err := debfile.ValidateIdentity(name, version, arch); err != nil {
		return err
	}

	p := Path(s.config.Component, name, version, arch)
	key := fmt.Sprintf("%s:%s:%s", name, version, arch)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.backend.Stat(ctx, p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.NewError(models.ErrNotFound, key, "no archive at %s", p)
		}
		return &models.PoolError{Type: models.ErrFileOp, Key: p, Err: err}
	}

	if err := s.backend.Remove(ctx, p); err != nil {
		return &models.PoolError{Type: models.ErrFileOp, Key: p, Err: err}
	}

	logrus.WithFields(logrus.Fields{"package": key, "path": p}).Info("Retracted archive from pool")
	return nil
}

// Open returns a reader over a pool archive
func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := s.backend.Open(ctx, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, models.NewError(models.ErrNotFound, name, "archive vanished from pool")
		}
		return nil, &models.PoolError{Type: models.ErrFileOp, Key: name, Err: err}
	}
	return r, nil
}

// Get reads a whole pool archive
func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	r, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &models.PoolError{Type: models.ErrFileOp, Key: name, Err: err}
	}
	return data, nil
}

func (s *Store) checksum(ctx context.Context, name string) (*utils.Checksum, error) {
	r, err := s.backend.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return utils.CalculateReaderChecksums(r)
}

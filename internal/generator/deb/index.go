package deb

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/ralt/aptpool/internal/cache"
	"github.com/ralt/aptpool/internal/debfile"
	"github.com/ralt/aptpool/internal/models"
	"github.com/ralt/aptpool/internal/pool"
	"github.com/ralt/aptpool/internal/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Builder produces the package index of an architecture from the pool
type Builder struct {
	store        *pool.Store
	cache        cache.Cache
	component    string
	workers      int
	compressions []utils.Compression
}

// NewBuilder creates an index builder. A nil cache disables caching.
func NewBuilder(store *pool.Store, c cache.Cache, config *models.RepositoryConfig) *Builder {
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if c == nil {
		c = cache.NewMemory()
	}

	compressions := make([]utils.Compression, 0, len(config.Compressions))
	for _, name := range config.Compressions {
		compressions = append(compressions, utils.Compression(name))
	}

	return &Builder{
		store:        store,
		cache:        c,
		component:    config.Component,
		workers:      workers,
		compressions: compressions,
	}
}

type extraction struct {
	pkg *models.Package
	err error
}

// Snapshot enumerates the pool once. Every index of one publication is
// built from the same snapshot so concurrent ingests or retractions cannot
// leave the architectures disagreeing.
func (b *Builder) Snapshot(ctx context.Context) ([]models.PoolEntry, error) {
	return b.store.List(ctx, "")
}

// Build extracts the archives of arch (plus architecture-independent ones)
// found in snapshot and renders the index files. Archives that fail to
// extract are left out and reported in Skipped. Two different archives
// claiming the same name/version/arch fail the whole build with
// InconsistentPool.
func (b *Builder) Build(ctx context.Context, arch string, snapshot []models.PoolEntry) (*models.PackageIndex, error) {
	log := logrus.WithField("architecture", arch)

	entries := selectEntries(snapshot, arch)
	log.Debugf("Extracting %d pool archives", len(entries))

	results := make([]extraction, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pkg, err := b.extract(gctx, entries[i].Path)
			results[i] = extraction{pkg: pkg, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	index := &models.PackageIndex{
		Architecture: arch,
		Skipped:      make(map[string]error),
	}

	var records []models.Package
	for i, res := range results {
		entry := entries[i]
		if res.err != nil {
			log.WithError(res.err).WithField("path", entry.Path).Warn("Skipping archive")
			index.Skipped[entry.Path] = res.err
			continue
		}

		pkg := res.pkg
		if pkg.Architecture != arch && pkg.Architecture != "all" {
			// unnamed archive of another architecture
			continue
		}
		if entry.Name != "" && (pkg.Name != entry.Name || pkg.Version != entry.Version || pkg.Architecture != entry.Architecture) {
			err := models.NewError(models.ErrCorruptArchive, entry.Path,
				"file name does not match control fields %s", pkg.Identity())
			log.WithError(err).Warn("Skipping archive")
			index.Skipped[entry.Path] = err
			continue
		}

		records = append(records, *pkg)
	}

	unique, conflicts := utils.DetectConflicts(records)
	if len(conflicts) > 0 {
		var details []string
		for _, c := range conflicts {
			details = append(details, fmt.Sprintf("%s (%s, %s)", c.Identity, c.First.Filename, c.Second.Filename))
		}
		return nil, models.NewError(models.ErrInconsistentPool, arch,
			"different archives share an identity: %s", strings.Join(details, "; "))
	}

	if dups := len(records) - len(unique); dups > 0 {
		log.Warnf("Collapsed %d identical archives stored under several paths", dups)
	}

	SortPackages(unique)
	index.Records = unique

	files, err := b.render(arch, unique)
	if err != nil {
		return nil, err
	}
	index.Files = files

	log.Infof("Built index with %d packages (%d skipped)", len(unique), len(index.Skipped))
	return index, nil
}

// selectEntries picks the archives of snapshot feeding the index of arch.
// Unnamed archives are kept; their architecture is known only after
// extraction.
func selectEntries(snapshot []models.PoolEntry, arch string) []models.PoolEntry {
	var entries []models.PoolEntry
	for _, e := range snapshot {
		if e.Architecture == "" || e.Architecture == arch || e.Architecture == "all" {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries
}

// extract returns the record of a pool archive, from the cache when the
// content was seen before
func (b *Builder) extract(ctx context.Context, name string) (*models.Package, error) {
	sum, err := b.checksum(ctx, name)
	if err != nil {
		return nil, err
	}

	if pkg, ok, err := b.cache.Get(ctx, sum.SHA256); err != nil {
		logrus.WithError(err).Warn("Extraction cache lookup failed")
	} else if ok {
		pkg.Filename = name
		return pkg, nil
	}

	r, err := b.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	pkg, err := debfile.ParseReader(r)
	if err != nil {
		return nil, withPath(err, name)
	}
	if pkg.SHA256Sum != sum.SHA256 {
		return nil, models.NewError(models.ErrCorruptArchive, name, "archive changed while being read")
	}
	if err := pkg.Validate(); err != nil {
		return nil, withPath(err, name)
	}

	if err := b.cache.Put(ctx, pkg); err != nil {
		logrus.WithError(err).Warn("Extraction cache store failed")
	}

	pkg.Filename = name
	return pkg, nil
}

func (b *Builder) checksum(ctx context.Context, name string) (*utils.Checksum, error) {
	r, err := b.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	sum, err := utils.CalculateReaderChecksums(r)
	if err != nil {
		return nil, &models.PoolError{Type: models.ErrFileOp, Key: name, Err: err}
	}
	return sum, nil
}

// render serializes records into Packages and its compressed companions
func (b *Builder) render(arch string, records []models.Package) ([]models.IndexFile, error) {
	base := fmt.Sprintf("%s/binary-%s/Packages", b.component, arch)
	data := GeneratePackagesFile(records)

	files := []models.IndexFile{{Path: base, Data: data}}
	for _, c := range b.compressions {
		compressed, err := c.Compress(data)
		if err != nil {
			return nil, fmt.Errorf("failed to compress %s: %w", base, err)
		}
		files = append(files, models.IndexFile{Path: base + c.Extension(), Data: compressed})
	}
	return files, nil
}

// withPath attaches the pool path to errors that identify nothing yet
func withPath(err error, name string) error {
	if pe, ok := err.(*models.PoolError); ok && pe.Key == "" {
		return &models.PoolError{Type: pe.Type, Key: name, Err: pe.Err}
	}
	return err
}


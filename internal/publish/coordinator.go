// Package publish turns generated suite metadata into the live tree that
// clients fetch.
//
// Every publish writes a complete new generation next to the live one,
// re-reads and checksums it, and only then re-points dists/<suite> at it
// with a single rename. Clients therefore see either the old or the new
// generation, never a mix. Older generations are kept for rollback.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ralt/aptpool/internal/generator"
	"github.com/ralt/aptpool/internal/generator/deb"
	"github.com/ralt/aptpool/internal/models"
	"github.com/ralt/aptpool/internal/utils"
	"github.com/sirupsen/logrus"
)

// StateDir holds generations, staging areas and locks below the root
const StateDir = ".aptpool"

var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Coordinator publishes suites below a repository root
type Coordinator struct {
	root        string
	generator   generator.Generator
	retain      int
	lockTimeout time.Duration

	// afterStage runs once the staging tree is written, before it is verified
	afterStage func(dir string) error
}

// NewCoordinator creates a coordinator for the tree at root
func NewCoordinator(root string, gen generator.Generator, cfg models.PublishConfig) *Coordinator {
	retain := cfg.Retain
	if retain < 1 {
		retain = 1
	}
	return &Coordinator{
		root:        root,
		generator:   gen,
		retain:      retain,
		lockTimeout: cfg.LockTimeout,
	}
}

func (c *Coordinator) livePath(suite string) string {
	return filepath.Join(c.root, "dists", suite)
}

func (c *Coordinator) generationsDir(suite string) string {
	return filepath.Join(c.root, StateDir, "generations", suite)
}

func (c *Coordinator) generationDir(suite, id string) string {
	return filepath.Join(c.generationsDir(suite), id)
}

func (c *Coordinator) stagingDir(suite string) string {
	return filepath.Join(c.root, StateDir, "staging", suite)
}

func (c *Coordinator) lockPath(suite string) string {
	return filepath.Join(c.root, StateDir, "locks", suite+".lock")
}

// Publish generates suite from the current pool and makes it live.
// On any error the previously live generation stays untouched.
func (c *Coordinator) Publish(ctx context.Context, suite string) (*models.Generation, error) {
	if err := validName("suite", suite); err != nil {
		return nil, err
	}

	lock, err := acquireLock(ctx, c.lockPath(suite), suite, c.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	log := logrus.WithField("suite", suite)

	// Whatever is left in staging belongs to an interrupted publish
	if err := os.RemoveAll(c.stagingDir(suite)); err != nil {
		return nil, &models.PoolError{Type: models.ErrFileOp, Key: c.stagingDir(suite), Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tree, err := c.generator.Generate(ctx, suite)
	if err != nil {
		return nil, err
	}

	uid, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to create generation id: %w", err)
	}
	id := uid.String()
	staging := filepath.Join(c.stagingDir(suite), id)
	log = log.WithField("generation", id)

	published := false
	defer func() {
		if !published {
			os.RemoveAll(staging)
		}
	}()

	manifest, err := stage(staging, tree)
	if err != nil {
		return nil, err
	}
	log.Debugf("Staged %d files", len(manifest))

	if c.afterStage != nil {
		if err := c.afterStage(staging); err != nil {
			return nil, err
		}
	}

	if err := verify(staging, manifest); err != nil {
		log.WithError(err).Error("Staged generation failed verification")
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	genDir := c.generationDir(suite, id)
	if err := os.MkdirAll(c.generationsDir(suite), 0755); err != nil {
		return nil, &models.PoolError{Type: models.ErrFileOp, Key: c.generationsDir(suite), Err: err}
	}
	if err := os.Rename(staging, genDir); err != nil {
		return nil, &models.PoolError{Type: models.ErrFileOp, Key: genDir, Err: err}
	}
	if err := utils.SyncDir(c.generationsDir(suite)); err != nil {
		os.RemoveAll(genDir)
		return nil, &models.PoolError{Type: models.ErrFileOp, Key: genDir, Err: err}
	}

	if err := c.swap(suite, id); err != nil {
		os.RemoveAll(genDir)
		return nil, err
	}
	published = true
	log.Info("Published generation")

	c.prune(suite)

	return &models.Generation{
		ID:      id,
		Suite:   suite,
		Created: time.Now(),
		Live:    true,
	}, nil
}

// Rollback makes a retained generation live again after checking it is
// still intact
func (c *Coordinator) Rollback(ctx context.Context, suite, id string) error {
	if err := validName("suite", suite); err != nil {
		return err
	}
	if err := validName("generation", id); err != nil {
		return err
	}

	lock, err := acquireLock(ctx, c.lockPath(suite), suite, c.lockTimeout)
	if err != nil {
		return err
	}
	defer lock.release()

	genDir := c.generationDir(suite, id)
	info, err := os.Stat(genDir)
	if err != nil || !info.IsDir() {
		return models.NewError(models.ErrNotFound, id, "suite %s has no generation %s", suite, id)
	}

	if err := verifyRelease(genDir); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.swap(suite, id); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{"suite": suite, "generation": id}).Info("Rolled back")
	return nil
}

// Generations lists the retained generations of suite, oldest first
func (c *Coordinator) Generations(suite string) ([]models.Generation, error) {
	if err := validName("suite", suite); err != nil {
		return nil, err
	}

	ids, err := c.generationIDs(suite)
	if err != nil {
		return nil, err
	}
	live, err := c.Live(suite)
	if err != nil {
		return nil, err
	}

	gens := make([]models.Generation, 0, len(ids))
	for _, id := range ids {
		gen := models.Generation{ID: id, Suite: suite, Live: id == live}
		if info, err := os.Stat(c.generationDir(suite, id)); err == nil {
			gen.Created = info.ModTime()
		}
		gens = append(gens, gen)
	}
	return gens, nil
}

// Live returns the id of the live generation of suite, or "" when the
// suite was never published
func (c *Coordinator) Live(suite string) (string, error) {
	target, err := os.Readlink(c.livePath(suite))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", &models.PoolError{Type: models.ErrFileOp, Key: c.livePath(suite), Err: err}
	}
	return filepath.Base(target), nil
}

// generationIDs returns generation ids in creation order. Ids are
// time-ordered UUIDs, so lexical order is creation order.
func (c *Coordinator) generationIDs(suite string) ([]string, error) {
	entries, err := os.ReadDir(c.generationsDir(suite))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.PoolError{Type: models.ErrFileOp, Key: c.generationsDir(suite), Err: err}
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// swap points dists/<suite> at a generation with a single rename
func (c *Coordinator) swap(suite, id string) error {
	live := c.livePath(suite)

	info, err := os.Lstat(live)
	if err == nil && info.Mode()&os.ModeSymlink == 0 {
		return models.NewError(models.ErrFileOp, live, "live path is not a symlink, move it aside before publishing")
	}

	if err := os.MkdirAll(filepath.Dir(live), 0755); err != nil {
		return &models.PoolError{Type: models.ErrFileOp, Key: live, Err: err}
	}

	target, err := filepath.Rel(filepath.Dir(live), c.generationDir(suite, id))
	if err != nil {
		return &models.PoolError{Type: models.ErrFileOp, Key: live, Err: err}
	}
	if err := utils.AtomicSymlink(target, live); err != nil {
		return &models.PoolError{Type: models.ErrFileOp, Key: live, Err: err}
	}
	return nil
}

// prune removes the oldest generations beyond the retention count. The
// live generation is never removed.
func (c *Coordinator) prune(suite string) {
	ids, err := c.generationIDs(suite)
	if err != nil {
		logrus.WithError(err).Warn("Failed to list generations for pruning")
		return
	}
	live, err := c.Live(suite)
	if err != nil {
		logrus.WithError(err).Warn("Failed to resolve live generation for pruning")
		return
	}

	excess := len(ids) - c.retain
	for _, id := range ids {
		if excess <= 0 {
			break
		}
		if id == live {
			continue
		}
		if err := os.RemoveAll(c.generationDir(suite, id)); err != nil {
			logrus.WithError(err).Warnf("Failed to prune generation %s", id)
			continue
		}
		logrus.WithFields(logrus.Fields{"suite": suite, "generation": id}).Debug("Pruned generation")
		excess--
	}
}

// stage writes every file of tree below dir and returns what was written
func stage(dir string, tree *generator.Tree) (map[string]*utils.Checksum, error) {
	manifest := make(map[string]*utils.Checksum, len(tree.Files))

	for _, f := range tree.Files {
		clean := path.Clean(f.Path)
		if path.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
			return nil, models.NewError(models.ErrFileOp, f.Path, "refusing to stage outside the generation")
		}
		if _, dup := manifest[clean]; dup {
			return nil, models.NewError(models.ErrFileOp, f.Path, "staged twice")
		}

		target := filepath.Join(dir, filepath.FromSlash(clean))
		if err := utils.WriteFile(target, f.Data, 0644); err != nil {
			return nil, &models.PoolError{Type: models.ErrFileOp, Key: target, Err: err}
		}
		manifest[clean] = utils.CalculateDataChecksums(f.Data)
	}

	if err := utils.SyncDir(dir); err != nil {
		return nil, &models.PoolError{Type: models.ErrFileOp, Key: dir, Err: err}
	}
	return manifest, nil
}

// verify re-reads the staged tree: it must hold exactly the manifest's
// files with their checksums, and every file the Release lists must
// match the Release's checksums
func verify(dir string, manifest map[string]*utils.Checksum) error {
	seen := make(map[string]bool, len(manifest))

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		want, ok := manifest[rel]
		if !ok {
			return failed(rel, "unexpected file in staging tree")
		}
		got, err := utils.CalculateChecksums(p)
		if err != nil {
			return failed(rel, "unreadable: %v", err)
		}
		if !got.Equal(want) {
			return failed(rel, "checksum mismatch: wrote sha256 %s, read back %s", want.SHA256, got.SHA256)
		}
		seen[rel] = true
		return nil
	})
	if err != nil {
		if models.IsKind(err, models.ErrStagingVerificationFailed) {
			return err
		}
		return failed(dir, "walk staging tree: %v", err)
	}

	for rel := range manifest {
		if !seen[rel] {
			return failed(rel, "missing from staging tree")
		}
	}

	return verifyRelease(dir)
}

// verifyRelease checks every file listed by the Release in dir
func verifyRelease(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, deb.ReleaseName))
	if err != nil {
		return failed(deb.ReleaseName, "unreadable: %v", err)
	}
	desc, err := deb.ParseReleaseFile(data)
	if err != nil {
		return failed(deb.ReleaseName, "%v", err)
	}

	for _, f := range desc.Files {
		got, err := utils.CalculateChecksums(filepath.Join(dir, filepath.FromSlash(f.Path)))
		if err != nil {
			return failed(f.Path, "listed in Release but unreadable: %v", err)
		}
		if got.Size != f.Size || got.SHA256 != f.SHA256Sum || got.SHA512 != f.SHA512Sum ||
			got.SHA1 != f.SHA1Sum || got.MD5 != f.MD5Sum {
			return failed(f.Path, "does not match its Release entry")
		}
	}
	return nil
}

func failed(key, format string, args ...interface{}) error {
	return models.NewError(models.ErrStagingVerificationFailed, key, format, args...)
}

func validName(what, name string) error {
	if !nameRe.MatchString(name) {
		return models.NewError(models.ErrInvalidConfig, name, "invalid %s name", what)
	}
	return nil
}

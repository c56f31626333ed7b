package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ralt/aptpool/internal/models"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Root)
	assert.Equal(t, "main", cfg.Component)
	assert.Equal(t, "aptpool", cfg.Origin)
	assert.Equal(t, "aptpool", cfg.Label)
	assert.Equal(t, DefaultArchitectures, cfg.Architectures)
	assert.Equal(t, []string{"gz"}, cfg.Compressions)
	assert.Equal(t, 5, cfg.Publish.Retain)
	assert.Equal(t, 10*time.Second, cfg.Publish.LockTimeout)
	assert.Equal(t, "fs", cfg.Pool.Backend)
	assert.Equal(t, "memory", cfg.Cache.Backend)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "aptpool.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
origin: Example
architectures: [aarch64, amd64]
compressions: [gz, xz]
release:
  valid_for: 168h
publish:
  retain: 3
cache:
  backend: sqlite
`), 0644))

	t.Setenv("APTPOOL_LABEL", "Example Label")
	t.Setenv("APTPOOL_PUBLISH_LOCK_TIMEOUT", "30s")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("root", ".", "")
	flags.String("gpg-key", "", "")
	require.NoError(t, flags.Parse([]string{"--root", dir, "--gpg-key", "/keys/repo.asc"}))

	cfg, err := Load(file, flags)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Root)
	assert.Equal(t, "Example", cfg.Origin)
	assert.Equal(t, "Example Label", cfg.Label)
	assert.Equal(t, []string{"aarch64", "amd64"}, cfg.Architectures)
	assert.Equal(t, []string{"gz", "xz"}, cfg.Compressions)
	assert.Equal(t, 168*time.Hour, cfg.Release.ValidFor)
	assert.Equal(t, 3, cfg.Publish.Retain)
	assert.Equal(t, 30*time.Second, cfg.Publish.LockTimeout)
	assert.Equal(t, "/keys/repo.asc", cfg.Signing.Key)
	assert.Equal(t, filepath.Join(dir, ".aptpool/cache.db"), cfg.Cache.Path)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.True(t, models.IsKind(err, models.ErrInvalidConfig))
}

func TestValidate(t *testing.T) {
	valid := func() *models.RepositoryConfig {
		return &models.RepositoryConfig{
			Root:          "/srv/repo",
			Component:     "main",
			Architectures: []string{"all", "amd64"},
			Compressions:  []string{"gz"},
			Publish:       models.PublishConfig{Retain: 1},
			Pool:          models.PoolConfig{Backend: "fs"},
			Cache:         models.CacheConfig{Backend: "memory"},
		}
	}
	require.NoError(t, Validate(valid()))

	for name, mutate := range map[string]func(*models.RepositoryConfig){
		"only all":          func(c *models.RepositoryConfig) { c.Architectures = []string{"all"} },
		"bad compression":   func(c *models.RepositoryConfig) { c.Compressions = []string{"bz2"} },
		"zero retain":       func(c *models.RepositoryConfig) { c.Publish.Retain = 0 },
		"minio w/o bucket":  func(c *models.RepositoryConfig) { c.Pool = models.PoolConfig{Backend: "minio", Minio: models.MinioConfig{Endpoint: "s3:9000"}} },
		"unknown cache":     func(c *models.RepositoryConfig) { c.Cache.Backend = "redis" },
		"missing component": func(c *models.RepositoryConfig) { c.Component = "" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.True(t, models.IsKind(Validate(cfg), models.ErrInvalidConfig))
		})
	}
}

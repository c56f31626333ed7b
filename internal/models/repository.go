package models

import "time"

// RepositoryConfig contains configuration for pool maintenance and publication
type RepositoryConfig struct {
	// Root of the served tree; holds pool/, dists/ and .aptpool/
	Root string `mapstructure:"root"`

	// Repository metadata
	Origin        string   `mapstructure:"origin"`
	Label         string   `mapstructure:"label"`
	Description   string   `mapstructure:"description"`
	Codename      string   `mapstructure:"codename"` // defaults to the suite being published
	Component     string   `mapstructure:"component"`
	Architectures []string `mapstructure:"architectures"` // accepted by the pool; "all" is implicit
	Compressions  []string `mapstructure:"compressions"`  // index companions: gz, xz

	// Extraction concurrency; <= 0 means runtime.NumCPU()
	Workers int `mapstructure:"workers"`

	Release ReleaseConfig `mapstructure:"release"`
	Signing SigningConfig `mapstructure:"signing"`
	Publish PublishConfig `mapstructure:"publish"`
	Pool    PoolConfig    `mapstructure:"pool"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Log     LogConfig     `mapstructure:"log"`
}

// ReleaseConfig controls the release descriptor
type ReleaseConfig struct {
	ValidFor time.Duration `mapstructure:"valid_for"` // zero disables Valid-Until
}

// SigningConfig locates the OpenPGP key used for InRelease and Release.gpg
type SigningConfig struct {
	Key        string `mapstructure:"key"`
	Passphrase string `mapstructure:"passphrase"`
	Optional   bool   `mapstructure:"optional"` // publish unsigned when signing fails
}

// PublishConfig controls generations and the publish lock
type PublishConfig struct {
	Retain      int           `mapstructure:"retain"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// PoolConfig selects where package archives are stored
type PoolConfig struct {
	Backend string      `mapstructure:"backend"` // "fs" or "minio"
	Minio   MinioConfig `mapstructure:"minio"`
}

// MinioConfig holds object storage settings for the minio pool backend
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Secure    bool   `mapstructure:"secure"`
}

// CacheConfig selects the extraction cache
type CacheConfig struct {
	Backend string `mapstructure:"backend"` // "memory" or "sqlite"
	Path    string `mapstructure:"path"`    // sqlite database file; relative paths resolve against Root
}

// LogConfig holds logging configuration
type LogConfig struct {
	Format string `mapstructure:"format"` // "json" or "text"
}

// Supports reports whether arch is accepted into the pool.
func (c *RepositoryConfig) Supports(arch string) bool {
	if arch == "all" {
		return true
	}
	for _, a := range c.Architectures {
		if a == arch {
			return true
		}
	}
	return false
}

// IndexArchitectures returns the configured architectures that get their
// own binary-<arch> index, in configuration order.
func (c *RepositoryConfig) IndexArchitectures() []string {
	var arches []string
	for _, a := range c.Architectures {
		if a != "all" {
			arches = append(arches, a)
		}
	}
	return arches
}

package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ralt/aptpool/internal/models"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultArchitectures mirrors the architectures the repository has always
// accepted.
var DefaultArchitectures = []string{"all", "arm", "i686", "aarch64", "x86_64", "arm64", "amd64"}

// flagKeys maps command line flags to configuration keys
var flagKeys = map[string]string{
	"root":           "root",
	"component":      "component",
	"gpg-key":        "signing.key",
	"gpg-passphrase": "signing.passphrase",
	"workers":        "workers",
}

// Load reads configuration from defaults, an optional config file, the
// environment and the given flags, in increasing order of precedence.
// configFile may be empty, in which case aptpool.yaml is looked up in the
// working directory and /etc/aptpool/.
func Load(configFile string, flags *pflag.FlagSet) (*models.RepositoryConfig, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("aptpool")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/aptpool/")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, &models.PoolError{
				Type: models.ErrInvalidConfig,
				Err:  fmt.Errorf("error reading config file: %w", err),
			}
		}
	}

	v.SetEnvPrefix("APTPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	var cfg models.RepositoryConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &models.PoolError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("error unmarshaling config: %w", err),
		}
	}

	// Env values for list keys arrive as a single space separated string
	cfg.Architectures = splitList(cfg.Architectures)
	cfg.Compressions = splitList(cfg.Compressions)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("origin", "aptpool")
	v.SetDefault("label", "")
	v.SetDefault("description", "")
	v.SetDefault("codename", "")
	v.SetDefault("component", "main")
	v.SetDefault("architectures", DefaultArchitectures)
	v.SetDefault("compressions", []string{"gz"})
	v.SetDefault("workers", 0)
	v.SetDefault("release.valid_for", time.Duration(0))
	v.SetDefault("signing.key", "")
	v.SetDefault("signing.passphrase", "")
	v.SetDefault("signing.optional", false)
	v.SetDefault("publish.retain", 5)
	v.SetDefault("publish.lock_timeout", 10*time.Second)
	v.SetDefault("pool.backend", "fs")
	v.SetDefault("pool.minio.endpoint", "")
	v.SetDefault("pool.minio.access_key", "")
	v.SetDefault("pool.minio.secret_key", "")
	v.SetDefault("pool.minio.bucket", "")
	v.SetDefault("pool.minio.prefix", "")
	v.SetDefault("pool.minio.secure", true)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.path", ".aptpool/cache.db")
	v.SetDefault("log.format", "text")
}

// Validate fills derived defaults and rejects unusable settings.
func Validate(cfg *models.RepositoryConfig) error {
	if cfg.Root == "" {
		return invalid("root is required")
	}
	if cfg.Component == "" {
		return invalid("component is required")
	}
	if len(cfg.IndexArchitectures()) == 0 {
		return invalid("at least one architecture other than all is required")
	}
	if cfg.Label == "" {
		cfg.Label = cfg.Origin
	}
	for _, c := range cfg.Compressions {
		if c != "gz" && c != "xz" {
			return invalid("unknown compression %q (want gz or xz)", c)
		}
	}
	if cfg.Publish.Retain < 1 {
		return invalid("publish.retain must be at least 1")
	}
	switch cfg.Pool.Backend {
	case "fs":
	case "minio":
		if cfg.Pool.Minio.Endpoint == "" || cfg.Pool.Minio.Bucket == "" {
			return invalid("pool.minio.endpoint and pool.minio.bucket are required for the minio backend")
		}
	default:
		return invalid("unknown pool backend %q", cfg.Pool.Backend)
	}
	switch cfg.Cache.Backend {
	case "memory":
	case "sqlite":
		if cfg.Cache.Path == "" {
			return invalid("cache.path is required for the sqlite cache")
		}
		if !filepath.IsAbs(cfg.Cache.Path) {
			cfg.Cache.Path = filepath.Join(cfg.Root, cfg.Cache.Path)
		}
	default:
		return invalid("unknown cache backend %q", cfg.Cache.Backend)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return &models.PoolError{
		Type: models.ErrInvalidConfig,
		Err:  fmt.Errorf(format, args...),
	}
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		out = append(out, strings.Fields(strings.ReplaceAll(item, ",", " "))...)
	}
	return out
}

package cli

import (
	"github.com/ralt/aptpool/internal/cache"
	"github.com/ralt/aptpool/internal/generator/deb"
	"github.com/ralt/aptpool/internal/models"
	"github.com/ralt/aptpool/internal/pool"
	"github.com/ralt/aptpool/internal/publish"
	"github.com/ralt/aptpool/internal/signer"
	"github.com/sirupsen/logrus"
)

// openStore opens the pool on the configured backend
func openStore(cfg *models.RepositoryConfig) (*pool.Store, error) {
	var backend pool.Backend
	switch cfg.Pool.Backend {
	case "minio":
		b, err := pool.NewMinioBackend(cfg.Pool.Minio)
		if err != nil {
			return nil, &models.PoolError{Type: models.ErrInvalidConfig, Key: cfg.Pool.Minio.Endpoint, Err: err}
		}
		backend = b
	default:
		backend = pool.NewOSBackend(cfg.Root)
	}
	return pool.NewStore(backend, cfg), nil
}

// openSigner loads the signing key. An unusable key is fatal unless
// signing is optional.
func openSigner(cfg *models.RepositoryConfig) (signer.Signer, error) {
	s, err := signer.New(cfg.Signing)
	if err != nil {
		if cfg.Signing.Optional {
			logrus.WithError(err).Warn("Signing key unavailable, publishing unsigned")
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// openCoordinator wires the full publication pipeline. The returned
// close function releases the extraction cache.
func openCoordinator(cfg *models.RepositoryConfig) (*publish.Coordinator, func() error, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	s, err := openSigner(cfg)
	if err != nil {
		return nil, nil, err
	}

	c, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, nil, err
	}

	builder := deb.NewBuilder(store, c, cfg)
	gen := deb.NewGenerator(builder, s, cfg)
	return publish.NewCoordinator(cfg.Root, gen, cfg.Publish), c.Close, nil
}

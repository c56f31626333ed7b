package signer

import (
	"github.com/ralt/aptpool/internal/models"
)

// Signer interface for signing repository metadata
type Signer interface {
	// SignCleartext creates a cleartext signature (for Debian InRelease)
	SignCleartext(data []byte) ([]byte, error)

	// SignDetached creates a detached signature (for Release.gpg)
	SignDetached(data []byte) ([]byte, error)

	// GetPublicKey returns the public key
	GetPublicKey() ([]byte, error)
}

// New loads the signer described by cfg. No key configured means no
// signer; a key that cannot be loaded is SigningUnavailable.
func New(cfg models.SigningConfig) (Signer, error) {
	if cfg.Key == "" {
		return nil, nil
	}

	s, err := NewGPGSigner(cfg.Key, cfg.Passphrase)
	if err != nil {
		return nil, &models.PoolError{Type: models.ErrSigningUnavailable, Key: cfg.Key, Err: err}
	}
	return s, nil
}

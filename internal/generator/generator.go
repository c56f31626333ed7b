package generator

import (
	"context"

	"github.com/ralt/aptpool/internal/models"
)

// File is one file of a generated suite tree, relative to the suite directory
type File struct {
	Path string
	Data []byte
}

// Tree is the complete metadata of one suite, ready to be staged
type Tree struct {
	Suite   string
	Release *models.ReleaseDescriptor
	Indexes []*models.PackageIndex
	Files   []File
}

// Generator builds suite metadata from the current pool contents
type Generator interface {
	// Generate builds every index, the release descriptor and its
	// signatures for suite. Nothing is written anywhere.
	Generate(ctx context.Context, suite string) (*Tree, error)
}

package deb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ralt/aptpool/internal/generator"
	"github.com/ralt/aptpool/internal/models"
	"github.com/ralt/aptpool/internal/signer"
	"github.com/sirupsen/logrus"
)

// File names inside a suite directory
const (
	ReleaseName    = "Release"
	InReleaseName  = "InRelease"
	SignatureName  = "Release.gpg"
	PublicKeyName  = "archive-key.asc"
	BrowserMapName = "packages.json"
)

// Generator implements the generator.Generator interface for Debian repositories
type Generator struct {
	builder *Builder
	signer  signer.Signer
	config  *models.RepositoryConfig

	now func() time.Time
}

// NewGenerator creates a new Debian generator. A nil signer publishes
// unsigned.
func NewGenerator(builder *Builder, s signer.Signer, config *models.RepositoryConfig) *Generator {
	return &Generator{
		builder: builder,
		signer:  s,
		config:  config,
		now:     time.Now,
	}
}

// Generate creates the metadata tree of a suite
func (g *Generator) Generate(ctx context.Context, suite string) (*generator.Tree, error) {
	logrus.Infof("Generating suite %s...", suite)

	snapshot, err := g.builder.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var indexes []*models.PackageIndex
	for _, arch := range g.config.IndexArchitectures() {
		idx, err := g.builder.Build(ctx, arch, snapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to build index for %s: %w", arch, err)
		}
		indexes = append(indexes, idx)
	}

	desc, err := BuildRelease(g.config, suite, indexes, g.now())
	if err != nil {
		return nil, err
	}
	if err := Sign(desc, g.signer, g.config.Signing.Optional); err != nil {
		return nil, err
	}

	tree := &generator.Tree{
		Suite:   suite,
		Release: desc,
	}

	for _, idx := range indexes {
		if len(idx.Records) == 0 {
			continue
		}
		tree.Indexes = append(tree.Indexes, idx)
		for _, f := range idx.Files {
			tree.Files = append(tree.Files, generator.File{Path: f.Path, Data: f.Data})
		}
	}

	browser, err := GenerateBrowserMap(tree.Indexes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s: %w", BrowserMapName, err)
	}

	tree.Files = append(tree.Files,
		generator.File{Path: ReleaseName, Data: desc.Release},
		generator.File{Path: InReleaseName, Data: desc.InRelease},
		generator.File{Path: BrowserMapName, Data: browser},
	)
	if desc.Signed() {
		tree.Files = append(tree.Files,
			generator.File{Path: SignatureName, Data: desc.Signature},
			generator.File{Path: PublicKeyName, Data: desc.PublicKey},
		)
	}

	logrus.Infof("Generated suite %s (%s)", suite, strings.Join(desc.Architectures, " "))
	return tree, nil
}

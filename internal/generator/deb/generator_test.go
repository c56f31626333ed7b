package deb

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ralt/aptpool/internal/cache"
	"github.com/ralt/aptpool/internal/generator"
	"github.com/ralt/aptpool/internal/models"
	"github.com/ralt/aptpool/internal/pool"
	"github.com/ralt/aptpool/internal/signer"
	"github.com/ralt/aptpool/internal/testutil"
	"github.com/ralt/aptpool/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *models.RepositoryConfig {
	return &models.RepositoryConfig{
		Origin:        "Test",
		Label:         "Test",
		Component:     "main",
		Architectures: []string{"aarch64", "amd64"},
		Compressions:  []string{"gz", "xz"},
		Workers:       2,
	}
}

type fixture struct {
	config  *models.RepositoryConfig
	backend pool.Backend
	store   *pool.Store
	cache   *cache.Memory
	builder *Builder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{config: testConfig(), backend: pool.NewMemoryBackend(), cache: cache.NewMemory()}
	f.store = pool.NewStore(f.backend, f.config)
	f.builder = NewBuilder(f.store, f.cache, f.config)
	return f
}

func (f *fixture) add(t *testing.T, data []byte) {
	t.Helper()
	_, err := f.store.Add(context.Background(), data)
	require.NoError(t, err)
}

func (f *fixture) build(ctx context.Context, arch string) (*models.PackageIndex, error) {
	snapshot, err := f.builder.Snapshot(context.Background())
	if err != nil {
		return nil, err
	}
	return f.builder.Build(ctx, arch, snapshot)
}

func (f *fixture) generator(s signer.Signer) *Generator {
	g := NewGenerator(f.builder, s, f.config)
	g.now = func() time.Time { return fixedNow }
	return g
}

func identities(records []models.Package) []string {
	var ids []string
	for _, r := range records {
		ids = append(ids, r.Identity())
	}
	return ids
}

func fileData(tree *generator.Tree, path string) []byte {
	for _, f := range tree.Files {
		if f.Path == path {
			return f.Data
		}
	}
	return nil
}

func TestBuildMergesArchitectureIndependentPackages(t *testing.T) {
	f := newFixture(t)
	f.add(t, testutil.SimpleDeb("curl", "8.5.0-2", "aarch64", "Depends: libc6 (>= 2.34)"))
	f.add(t, testutil.SimpleDeb("git", "2.43.0-1", "amd64"))
	f.add(t, testutil.SimpleDeb("docs", "1.0", "all"))

	idx, err := f.build(context.Background(), "aarch64")
	require.NoError(t, err)

	assert.Equal(t, []string{"curl:8.5.0-2:aarch64", "docs:1.0:all"}, identities(idx.Records))
	assert.Equal(t, "pool/main/c/curl/curl_8.5.0-2_aarch64.deb", idx.Records[0].Filename)
	assert.Equal(t, []string{"libc6 (>= 2.34)"}, idx.Records[0].Depends())
	assert.Empty(t, idx.Skipped)

	require.Len(t, idx.Files, 3)
	assert.Equal(t, "main/binary-aarch64/Packages", idx.Files[0].Path)
	assert.Equal(t, "main/binary-aarch64/Packages.gz", idx.Files[1].Path)
	assert.Equal(t, "main/binary-aarch64/Packages.xz", idx.Files[2].Path)

	plain, err := utils.GzipDecompress(idx.Files[1].Data)
	require.NoError(t, err)
	assert.Equal(t, idx.Files[0].Data, plain)
}

func TestBuildSkipsBrokenArchives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, testutil.SimpleDeb("curl", "1.0", "aarch64"))
	require.NoError(t, f.backend.Put(ctx, "pool/main/b/broken/broken_1.0_aarch64.deb", []byte("garbage")))
	require.NoError(t, f.backend.Put(ctx, "pool/main/n/nofields/nofields_1.0_aarch64.deb",
		testutil.BuildDeb("Package: nofields\nArchitecture: aarch64\n", testutil.DebOptions{})))

	idx, err := f.build(ctx, "aarch64")
	require.NoError(t, err)

	assert.Equal(t, []string{"curl:1.0:aarch64"}, identities(idx.Records))
	require.Len(t, idx.Skipped, 2)
	assert.True(t, models.IsKind(idx.Skipped["pool/main/b/broken/broken_1.0_aarch64.deb"], models.ErrCorruptArchive))
	assert.True(t, models.IsKind(idx.Skipped["pool/main/n/nofields/nofields_1.0_aarch64.deb"], models.ErrMissingControlFields))
}

func TestBuildDetectsInconsistentPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, testutil.SimpleDeb("curl", "1.0", "aarch64"))

	// a second archive outside the naming scheme claiming the same identity
	other := testutil.BuildDeb(testutil.Control("curl", "1.0", "aarch64"), testutil.DebOptions{Payload: []byte("other")})
	require.NoError(t, f.backend.Put(ctx, "pool/main/c/curl/curl-rebuilt.deb", other))

	_, err := f.build(ctx, "aarch64")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrInconsistentPool))
	assert.Contains(t, err.Error(), "curl:1.0:aarch64")

	// other architectures are unaffected
	_, err = f.build(ctx, "amd64")
	assert.NoError(t, err)
}

func TestBuildCollapsesIdenticalCopies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	data := testutil.SimpleDeb("curl", "1.0", "aarch64")
	f.add(t, data)
	require.NoError(t, f.backend.Put(ctx, "pool/main/c/curl/a-copy.deb", data))

	idx, err := f.build(ctx, "aarch64")
	require.NoError(t, err)
	require.Len(t, idx.Records, 1)
	assert.Equal(t, "pool/main/c/curl/a-copy.deb", idx.Records[0].Filename)
}

func TestBuildOrdersByVersion(t *testing.T) {
	f := newFixture(t)
	for _, v := range []string{"1.10", "1.2a", "1.2"} {
		f.add(t, testutil.SimpleDeb("foo", v, "aarch64"))
	}
	f.add(t, testutil.SimpleDeb("bar", "9", "aarch64"))

	idx, err := f.build(context.Background(), "aarch64")
	require.NoError(t, err)
	assert.Equal(t, []string{"bar:9:aarch64", "foo:1.2:aarch64", "foo:1.2a:aarch64", "foo:1.10:aarch64"}, identities(idx.Records))
}

func TestBuildUsesExtractionCache(t *testing.T) {
	f := newFixture(t)
	f.add(t, testutil.SimpleDeb("curl", "1.0", "aarch64"))
	f.add(t, testutil.SimpleDeb("docs", "1.0", "all"))

	first, err := f.build(context.Background(), "aarch64")
	require.NoError(t, err)
	assert.Equal(t, 2, f.cache.Len())

	second, err := f.build(context.Background(), "aarch64")
	require.NoError(t, err)
	assert.Equal(t, first.Files, second.Files)
}

func TestBuildHonorsCancellation(t *testing.T) {
	f := newFixture(t)
	f.add(t, testutil.SimpleDeb("curl", "1.0", "aarch64"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.build(ctx, "aarch64")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPackagesFileLayout(t *testing.T) {
	records := []models.Package{{
		Name:          "curl",
		Version:       "1.0",
		Architecture:  "aarch64",
		Maintainer:    "Test <test@example.com>",
		InstalledSize: "42",
		Description:   "transfer tool\nlong text\n.\nmore",
		Relations: map[string][]string{
			"Depends":  {"libc6 (>= 2.34)", "libcurl4 | libcurl3"},
			"Provides": {"http-client"},
		},
		Extra:     map[string]string{"Section": "web", "Priority": "optional"},
		Filename:  "pool/main/c/curl/curl_1.0_aarch64.deb",
		Size:      10,
		MD5Sum:    "m",
		SHA1Sum:   "s1",
		SHA256Sum: "s256",
		SHA512Sum: "s512",
	}}

	want := "Package: curl\n" +
		"Version: 1.0\n" +
		"Architecture: aarch64\n" +
		"Maintainer: Test <test@example.com>\n" +
		"Installed-Size: 42\n" +
		"Depends: libc6 (>= 2.34), libcurl4 | libcurl3\n" +
		"Provides: http-client\n" +
		"Description: transfer tool\n" +
		" long text\n" +
		" .\n" +
		" more\n" +
		"Priority: optional\n" +
		"Section: web\n" +
		"Filename: pool/main/c/curl/curl_1.0_aarch64.deb\n" +
		"Size: 10\n" +
		"MD5sum: m\n" +
		"SHA1: s1\n" +
		"SHA256: s256\n" +
		"SHA512: s512\n"
	assert.Equal(t, want, string(GeneratePackagesFile(records)))

	parsed, err := ParsePackagesIndex(bytes.NewReader(GeneratePackagesFile(append(records, records[0]))))
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, records[0].Relations, parsed[1].Relations)
	assert.Equal(t, records[0].SHA256Sum, parsed[1].SHA256Sum)
	assert.Equal(t, records[0].Description, parsed[1].Description)
}

func TestBuildReleaseRejectsEmptyArchitectureSet(t *testing.T) {
	indexes := []*models.PackageIndex{{Architecture: "aarch64"}, {Architecture: "amd64"}}
	_, err := BuildRelease(testConfig(), "stable", indexes, fixedNow)
	assert.True(t, models.IsKind(err, models.ErrEmptyArchitectureSet))
}

func TestBuildReleaseDescribesIndexes(t *testing.T) {
	f := newFixture(t)
	f.config.Release.ValidFor = 7 * 24 * time.Hour
	f.add(t, testutil.SimpleDeb("curl", "1.0", "aarch64"))

	aarch64, err := f.build(context.Background(), "aarch64")
	require.NoError(t, err)
	amd64, err := f.build(context.Background(), "amd64")
	require.NoError(t, err)

	desc, err := BuildRelease(f.config, "stable", []*models.PackageIndex{aarch64, amd64}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"aarch64"}, desc.Architectures)
	assert.Equal(t, "stable", desc.Codename)
	require.Len(t, desc.Files, 3)

	parsed, err := ParseReleaseFile(desc.Release)
	require.NoError(t, err)
	assert.Equal(t, "Test", parsed.Origin)
	assert.Equal(t, []string{"main"}, parsed.Components)
	assert.True(t, parsed.Date.Equal(fixedNow))
	assert.True(t, parsed.ValidUntil.Equal(fixedNow.Add(7*24*time.Hour)))
	assert.Equal(t, desc.Files, parsed.Files)

	for i, file := range aarch64.Files {
		sum := utils.CalculateDataChecksums(file.Data)
		assert.Equal(t, file.Path, parsed.Files[i].Path)
		assert.Equal(t, sum.SHA256, parsed.Files[i].SHA256Sum)
		assert.Equal(t, sum.Size, parsed.Files[i].Size)
	}
}

type failingSigner struct{}

func (failingSigner) SignCleartext([]byte) ([]byte, error) { return nil, errors.New("agent gone") }
func (failingSigner) SignDetached([]byte) ([]byte, error) { return nil, errors.New("agent gone") }
func (failingSigner) GetPublicKey() ([]byte, error) { return nil, errors.New("agent gone") }

func TestSignFailure(t *testing.T) {
	desc := &models.ReleaseDescriptor{Suite: "stable", Release: []byte("Origin: Test\n")}

	err := Sign(desc, failingSigner{}, false)
	assert.True(t, models.IsKind(err, models.ErrSigningUnavailable))

	require.NoError(t, Sign(desc, failingSigner{}, true))
	assert.False(t, desc.Signed())
	assert.Equal(t, desc.Release, desc.InRelease)
}

func TestGenerateUnsigned(t *testing.T) {
	f := newFixture(t)
	f.add(t, testutil.SimpleDeb("curl", "1.0", "aarch64"))

	tree, err := f.generator(nil).Generate(context.Background(), "testing")
	require.NoError(t, err)

	release := fileData(tree, ReleaseName)
	inRelease := fileData(tree, InReleaseName)
	require.NotNil(t, release)

	// InRelease mirrors Release for unsigned repositories
	assert.Equal(t, release, inRelease)
	assert.NotContains(t, string(inRelease), "BEGIN PGP")
	assert.Nil(t, fileData(tree, SignatureName))
	assert.NotNil(t, fileData(tree, BrowserMapName))
	assert.NotNil(t, fileData(tree, "main/binary-aarch64/Packages"))
	assert.Nil(t, fileData(tree, "main/binary-amd64/Packages"))
}

func TestGenerateSigned(t *testing.T) {
	f := newFixture(t)
	f.add(t, testutil.SimpleDeb("curl", "1.0", "aarch64"))

	keyPath, err := testutil.WriteSigningKey(t.TempDir())
	require.NoError(t, err)
	s, err := signer.NewGPGSigner(keyPath, "")
	require.NoError(t, err)

	tree, err := f.generator(s).Generate(context.Background(), "stable")
	require.NoError(t, err)
	assert.True(t, tree.Release.Signed())
	assert.Contains(t, string(fileData(tree, InReleaseName)), "BEGIN PGP SIGNED MESSAGE")
	assert.Contains(t, string(fileData(tree, SignatureName)), "BEGIN PGP SIGNATURE")
	assert.Contains(t, string(fileData(tree, PublicKeyName)), "BEGIN PGP PUBLIC KEY BLOCK")
}

func TestGenerateIsDeterministic(t *testing.T) {
	f := newFixture(t)
	f.add(t, testutil.SimpleDeb("curl", "1.0", "aarch64"))
	f.add(t, testutil.SimpleDeb("git", "2.0", "amd64"))
	f.add(t, testutil.SimpleDeb("docs", "1.0", "all"))

	first, err := f.generator(nil).Generate(context.Background(), "stable")
	require.NoError(t, err)

	// a cold cache must not change a byte
	f.builder = NewBuilder(f.store, cache.NewMemory(), f.config)
	second, err := f.generator(nil).Generate(context.Background(), "stable")
	require.NoError(t, err)

	assert.Equal(t, first.Files, second.Files)
}

func TestGenerateFailsOnEmptyPool(t *testing.T) {
	f := newFixture(t)
	_, err := f.generator(nil).Generate(context.Background(), "stable")
	assert.True(t, models.IsKind(err, models.ErrEmptyArchitectureSet))
}

// ingestingBackend stores one more archive the first time a pool archive
// is read, like an ingest landing in the middle of a publication
type ingestingBackend struct {
	pool.Backend
	once sync.Once
	name string
	data []byte
}

func (b *ingestingBackend) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	var err error
	b.once.Do(func() { err = b.Backend.Put(ctx, b.name, b.data) })
	if err != nil {
		return nil, err
	}
	return b.Backend.Open(ctx, name)
}

func TestGenerateReadsOnePoolSnapshot(t *testing.T) {
	f := newFixture(t)
	f.add(t, testutil.SimpleDeb("curl", "1.0", "aarch64"))
	f.add(t, testutil.SimpleDeb("git", "2.0", "amd64"))
	f.add(t, testutil.SimpleDeb("manual", "1.0", "all"))

	f.config.Workers = 1
	f.store = pool.NewStore(&ingestingBackend{
		Backend: f.backend,
		name:    "pool/main/d/docs/docs_1.0_all.deb",
		data:    testutil.SimpleDeb("docs", "1.0", "all"),
	}, f.config)
	f.builder = NewBuilder(f.store, f.cache, f.config)

	tree, err := f.generator(nil).Generate(context.Background(), "stable")
	require.NoError(t, err)
	require.Len(t, tree.Indexes, 2)
	assert.Equal(t, []string{"curl:1.0:aarch64", "manual:1.0:all"}, identities(tree.Indexes[0].Records))
	assert.Equal(t, []string{"git:2.0:amd64", "manual:1.0:all"}, identities(tree.Indexes[1].Records))

	// the late archive shows up everywhere on the next publication
	tree, err = f.generator(nil).Generate(context.Background(), "stable")
	require.NoError(t, err)
	assert.Equal(t, []string{"curl:1.0:aarch64", "docs:1.0:all", "manual:1.0:all"}, identities(tree.Indexes[0].Records))
	assert.Equal(t, []string{"docs:1.0:all", "git:2.0:amd64", "manual:1.0:all"}, identities(tree.Indexes[1].Records))
}

package pool

import (
	"context"
	"testing"

	"github.com/ralt/aptpool/internal/models"
	"github.com/ralt/aptpool/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *models.RepositoryConfig {
	return &models.RepositoryConfig{
		Component:     "main",
		Architectures: []string{"aarch64", "amd64"},
	}
}

func TestPath(t *testing.T) {
	assert.Equal(t, "pool/main/c/curl/curl_1.0_aarch64.deb", Path("main", "curl", "1.0", "aarch64"))
	assert.Equal(t, "pool/main/libs/libssl3/libssl3_3.0.2-1_amd64.deb", Path("main", "libssl3", "3.0.2-1", "amd64"))
	assert.Equal(t, "pool/main/0/0ad/0ad_1%3a0.26_all.deb", Path("main", "0ad", "1:0.26", "all"))
	assert.Equal(t, "pool/main/l/lib/lib_1_all.deb", Path("main", "lib", "1", "all"))

	name, version, arch, ok := ParseFileName("0ad_1%3a0.26_all.deb")
	require.True(t, ok)
	assert.Equal(t, "0ad", name)
	assert.Equal(t, "1:0.26", version)
	assert.Equal(t, "all", arch)

	_, _, _, ok = ParseFileName("random.deb")
	assert.False(t, ok)
}

func TestAddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(), testConfig())
	data := testutil.SimpleDeb("curl", "1.0", "aarch64")

	first, err := store.Add(ctx, data)
	require.NoError(t, err)
	assert.False(t, first.Existing)
	assert.Equal(t, "pool/main/c/curl/curl_1.0_aarch64.deb", first.Path)

	second, err := store.Add(ctx, data)
	require.NoError(t, err)
	assert.True(t, second.Existing)
	assert.Equal(t, first.SHA256Sum, second.SHA256Sum)

	entries, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(len(data)), entries[0].Size)
}

func TestAddRejectsDifferentContentForSameVersion(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(), testConfig())
	control := testutil.Control("curl", "1.0", "aarch64")

	original := testutil.BuildDeb(control, testutil.DebOptions{Payload: []byte("original")})
	_, err := store.Add(ctx, original)
	require.NoError(t, err)

	tampered := testutil.BuildDeb(control, testutil.DebOptions{Payload: []byte("tampered")})
	_, err = store.Add(ctx, tampered)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrDuplicateVersionConflict), "got %v", err)

	stored, err := store.Get(ctx, "pool/main/c/curl/curl_1.0_aarch64.deb")
	require.NoError(t, err)
	assert.Equal(t, original, stored)
}

func TestAddRejectsUnsupportedArchitecture(t *testing.T) {
	store := NewStore(NewMemoryBackend(), testConfig())

	_, err := store.Add(context.Background(), testutil.SimpleDeb("curl", "1.0", "riscv64"))
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrUnsupportedArchitecture))

	_, err = store.Add(context.Background(), testutil.SimpleDeb("docs", "1.0", "all"))
	require.NoError(t, err)
}

func TestAddRejectsCorruptArchive(t *testing.T) {
	store := NewStore(NewMemoryBackend(), testConfig())

	_, err := store.Add(context.Background(), []byte("not a deb"))
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrCorruptArchive))

	entries, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListFiltersByArchitecture(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(), testConfig())

	for _, data := range [][]byte{
		testutil.SimpleDeb("git", "2.3", "aarch64"),
		testutil.SimpleDeb("curl", "1.0", "aarch64"),
		testutil.SimpleDeb("curl", "1.0", "amd64"),
		testutil.SimpleDeb("docs", "1.0", "all"),
	} {
		_, err := store.Add(ctx, data)
		require.NoError(t, err)
	}

	entries, err := store.List(ctx, "aarch64")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "curl", entries[0].Name)
	assert.Equal(t, "git", entries[1].Name)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestRetract(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(), testConfig())

	_, err := store.Add(ctx, testutil.SimpleDeb("curl", "1.0", "aarch64"))
	require.NoError(t, err)

	require.NoError(t, store.Retract(ctx, "curl", "1.0", "aarch64"))

	entries, err := store.List(ctx, "aarch64")
	require.NoError(t, err)
	assert.Empty(t, entries)

	err = store.Retract(ctx, "curl", "1.0", "aarch64")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrNotFound))

	// retraction frees the version for new content
	_, err = store.Add(ctx, testutil.BuildDeb(testutil.Control("curl", "1.0", "aarch64"),
		testutil.DebOptions{Payload: []byte("rebuilt")}))
	require.NoError(t, err)
}

func TestRetractRejectsMalformedIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(), testConfig())

	_, err := store.Add(ctx, testutil.SimpleDeb("curl", "1.0", "aarch64"))
	require.NoError(t, err)

	tests := []struct {
		name, version, arch string
	}{
		{"", "1.0", "aarch64"},
		{"curl", "", "aarch64"},
		{"curl", "1.0", ""},
		{"../curl", "1.0", "aarch64"},
		{"curl", "1.0/../x", "aarch64"},
		{"curl", "1.0", "aarch64/.."},
	}
	for _, tt := range tests {
		err := store.Retract(ctx, tt.name, tt.version, tt.arch)
		require.Error(t, err, "%q %q %q", tt.name, tt.version, tt.arch)
		assert.True(t, models.IsKind(err, models.ErrInvalidConfig), "%q %q %q", tt.name, tt.version, tt.arch)
	}

	entries, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Equal(t, "0", Prefix(""))
}

func TestOSBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewOSBackend(t.TempDir()), testConfig())
	data := testutil.SimpleDeb("micro", "2.0.15", "aarch64")

	entry, err := store.Add(ctx, data)
	require.NoError(t, err)

	got, err := store.Get(ctx, entry.Path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = store.Get(ctx, "pool/main/m/missing/missing_1_aarch64.deb")
	assert.True(t, models.IsKind(err, models.ErrNotFound))
}

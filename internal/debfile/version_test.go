package debfile

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.2", "1.2a", -1},
		{"1.2a", "1.10", -1},
		{"1.2", "1.10", -1},
		{"1.10", "1.2", 1},
		{"1.0", "1.0", 0},
		{"1.0", "1.00", 0},
		{"1.0~rc1", "1.0", -1},
		{"1.0", "1.0+b1", -1},
		{"1:0.9", "2.0", 1},
		{"2.0-1", "2.0-2", -1},
		{"2.0-10", "2.0-9", 1},
		{"2.0", "2.0-1", -1},
		{"1.99999999999999999999", "1.100000000000000000000", -1},
	}

	for _, tt := range tests {
		got := CompareVersions(tt.a, tt.b)
		assert.Equal(t, tt.want, sign(got), "CompareVersions(%q, %q)", tt.a, tt.b)
		assert.Equal(t, -tt.want, sign(CompareVersions(tt.b, tt.a)), "CompareVersions(%q, %q)", tt.b, tt.a)
	}
}

func TestVersionSortOrder(t *testing.T) {
	versions := []string{"1.10", "1.2a", "1.2", "1.2~beta", "1:0.1", "0.9"}
	sort.Slice(versions, func(i, j int) bool {
		return CompareVersions(versions[i], versions[j]) < 0
	})
	assert.Equal(t, []string{"0.9", "1.2~beta", "1.2", "1.2a", "1.10", "1:0.1"}, versions)
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("2:1.4.2-3ubuntu1")
	require.NoError(t, err)
	assert.Equal(t, 2, v.Epoch)
	assert.Equal(t, "1.4.2", v.Upstream)
	assert.Equal(t, "3ubuntu1", v.Revision)
	assert.Equal(t, "2:1.4.2-3ubuntu1", v.String())

	for _, bad := range []string{"", "a1.0", "1.0 beta", "x:1.0", "1.0-", "1.0_1"} {
		_, err := ParseVersion(bad)
		assert.Error(t, err, "version %q", bad)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

package debfile

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed Debian version: [epoch:]upstream[-revision]
type Version struct {
	Epoch    int
	Upstream string
	Revision string
}

// String renders the version back to its control-file form
func (v Version) String() string {
	s := v.Upstream
	if v.Epoch != 0 {
		s = strconv.Itoa(v.Epoch) + ":" + s
	}
	if v.Revision != "" {
		s += "-" + v.Revision
	}
	return s
}

// ParseVersion splits and validates a version string
func ParseVersion(s string) (Version, error) {
	var v Version
	if s == "" {
		return v, fmt.Errorf("empty version")
	}
	if strings.ContainsAny(s, " \t\n") {
		return v, fmt.Errorf("version %q contains whitespace", s)
	}

	rest := s
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		epoch, err := strconv.Atoi(rest[:i])
		if err != nil || epoch < 0 {
			return v, fmt.Errorf("version %q has a bad epoch", s)
		}
		v.Epoch = epoch
		rest = rest[i+1:]
	}

	if i := strings.LastIndexByte(rest, '-'); i >= 0 {
		v.Revision = rest[i+1:]
		rest = rest[:i]
		if v.Revision == "" {
			return v, fmt.Errorf("version %q has an empty revision", s)
		}
	}
	v.Upstream = rest

	if v.Upstream == "" || !isDigit(v.Upstream[0]) {
		return v, fmt.Errorf("version %q: upstream part must start with a digit", s)
	}
	for _, c := range []byte(v.Upstream) {
		if !isAlnum(c) && !strings.ContainsRune(".+~-:", rune(c)) {
			return v, fmt.Errorf("version %q contains invalid character %q", s, c)
		}
	}
	for _, c := range []byte(v.Revision) {
		if !isAlnum(c) && !strings.ContainsRune(".+~", rune(c)) {
			return v, fmt.Errorf("version %q contains invalid revision character %q", s, c)
		}
	}
	return v, nil
}

// CompareVersions orders two version strings: negative when a sorts
// before b, zero when equal, positive otherwise. Versions that do not
// parse are compared as plain upstream strings so the ordering stays total.
func CompareVersions(a, b string) int {
	va, errA := ParseVersion(a)
	vb, errB := ParseVersion(b)
	if errA != nil {
		va = Version{Upstream: a}
	}
	if errB != nil {
		vb = Version{Upstream: b}
	}
	return va.Compare(vb)
}

// Compare orders v against o by epoch, then upstream, then revision
func (v Version) Compare(o Version) int {
	if v.Epoch != o.Epoch {
		if v.Epoch < o.Epoch {
			return -1
		}
		return 1
	}
	if c := compareFragment(v.Upstream, o.Upstream); c != 0 {
		return c
	}
	return compareFragment(v.Revision, o.Revision)
}

// compareFragment walks alternating non-digit and digit runs. Non-digit
// runs compare character by character, digit runs compare as integers.
func compareFragment(a, b string) int {
	for a != "" || b != "" {
		var na, nb string
		na, a = splitRun(a, false)
		nb, b = splitRun(b, false)
		if c := compareLexical(na, nb); c != 0 {
			return c
		}

		var da, db string
		da, a = splitRun(a, true)
		db, b = splitRun(b, true)
		if c := compareNumeric(da, db); c != 0 {
			return c
		}
	}
	return 0
}

func splitRun(s string, digits bool) (run, rest string) {
	i := 0
	for i < len(s) && isDigit(s[i]) == digits {
		i++
	}
	return s[:i], s[i:]
}

// order ranks a character: '~' before the end of the run, the end before
// letters, letters before everything else.
func order(s string, i int) int {
	if i >= len(s) {
		return 0
	}
	c := s[i]
	switch {
	case c == '~':
		return -1
	case isAlpha(c):
		return int(c)
	default:
		return int(c) + 256
	}
}

func compareLexical(a, b string) int {
	for i := 0; i < len(a) || i < len(b); i++ {
		oa, ob := order(a, i), order(b, i)
		if oa != ob {
			if oa < ob {
				return -1
			}
			return 1
		}
	}
	return 0
}

// compareNumeric compares digit runs of any length without overflow
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isAlnum(c byte) bool { return isDigit(c) || isAlpha(c) }

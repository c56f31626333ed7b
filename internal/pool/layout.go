package pool

import (
	"fmt"
	"path"
	"strings"
)

// Prefix returns the directory bucket for a package name: "lib" plus the
// next letter for libraries, the first letter otherwise, "0" for names not
// starting with a letter.
func Prefix(name string) string {
	if strings.HasPrefix(name, "lib") && len(name) > 3 {
		return name[:4]
	}

	if name == "" {
		return "0"
	}

	firstLetter := name[:1]
	if firstLetter >= "a" && firstLetter <= "z" {
		return firstLetter
	}
	return "0"
}

// FileName returns the archive name for a package. The epoch separator is
// escaped so the name stays portable.
func FileName(name, version, arch string) string {
	return fmt.Sprintf("%s_%s_%s.deb", name, strings.ReplaceAll(version, ":", "%3a"), arch)
}

// Path returns the repository-relative placement of a package:
// pool/<component>/<prefix>/<name>/<name>_<version>_<arch>.deb
func Path(component, name, version, arch string) string {
	return path.Join("pool", component, Prefix(name), name, FileName(name, version, arch))
}

// ParseFileName splits a name produced by FileName back into its parts
func ParseFileName(base string) (name, version, arch string, ok bool) {
	stem, found := strings.CutSuffix(base, ".deb")
	if !found {
		return "", "", "", false
	}
	parts := strings.Split(stem, "_")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], strings.ReplaceAll(parts[1], "%3a", ":"), parts[2], true
}

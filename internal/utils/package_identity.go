package utils

import (
	"fmt"

	"github.com/ralt/aptpool/internal/models"
)

// PackageIdentity returns the name:version:architecture key of a package
func PackageIdentity(pkg models.Package) string {
	return fmt.Sprintf("%s:%s:%s", pkg.Name, pkg.Version, pkg.Architecture)
}

// Conflict is a pair of records sharing an identity with different content
type Conflict struct {
	Identity string
	First    models.Package
	Second   models.Package
}

// DetectConflicts groups packages by identity. Records with identical
// SHA256 sums are collapsed to the first occurrence; records whose sums
// differ are reported as conflicts.
func DetectConflicts(packages []models.Package) (unique []models.Package, conflicts []Conflict) {
	seen := make(map[string]int)
	for _, pkg := range packages {
		id := PackageIdentity(pkg)
		idx, ok := seen[id]
		if !ok {
			seen[id] = len(unique)
			unique = append(unique, pkg)
			continue
		}
		if unique[idx].SHA256Sum != pkg.SHA256Sum {
			conflicts = append(conflicts, Conflict{
				Identity: id,
				First:    unique[idx],
				Second:   pkg,
			})
		}
	}
	return unique, conflicts
}

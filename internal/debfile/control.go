package debfile

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/ralt/aptpool/internal/models"
	"pault.ag/go/debian/dependency"
)

var (
	nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9+.-]+$`)
	archRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
)

// Field is one key: value pair of a control paragraph. Multi-line values
// hold their continuation lines separated by "\n", each without the single
// leading space that marks a continuation.
type Field struct {
	Key   string
	Value string
}

// ParseParagraph parses the Debian control file format into its fields,
// in file order
func ParseParagraph(data []byte) ([]Field, error) {
	var fields []Field

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "#") {
			continue
		}

		// Handle continuation lines (start with space)
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
			if len(fields) > 0 {
				last := &fields[len(fields)-1]
				last.Value += "\n" + line[1:]
			}
			continue
		}

		// A blank line ends the paragraph
		if strings.TrimSpace(line) == "" {
			if len(fields) > 0 {
				break
			}
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields = append(fields, Field{
			Key:   strings.TrimSpace(key),
			Value: strings.TrimSpace(value),
		})
	}

	return fields, scanner.Err()
}

// computed fields are derived from the archive, never taken from control
var computed = map[string]bool{
	"Filename": true,
	"Size":     true,
	"MD5sum":   true,
	"MD5Sum":   true,
	"SHA1":     true,
	"SHA256":   true,
	"SHA512":   true,
}

// recordFromControl builds a package record from a control paragraph and
// validates the identifying fields
func recordFromControl(data []byte) (*models.Package, error) {
	fields, err := ParseParagraph(data)
	if err != nil {
		return nil, models.NewError(models.ErrCorruptArchive, "", "failed to parse control: %v", err)
	}

	pkg := &models.Package{
		Relations: make(map[string][]string),
		Extra:     make(map[string]string),
	}

	for _, f := range fields {
		if err := setValue(pkg, f.Key, f.Value); err != nil {
			return nil, err
		}
	}

	if err := validateIdentity(pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

// setValue sets a field in the Package based on the control file key
func setValue(pkg *models.Package, key, value string) error {
	switch key {
	case "Package":
		pkg.Name = value
	case "Version":
		pkg.Version = value
	case "Architecture":
		pkg.Architecture = value
	case "Description":
		pkg.Description = value
	case "Maintainer":
		pkg.Maintainer = value
	case "Homepage":
		pkg.Homepage = value
	case "Installed-Size":
		pkg.InstalledSize = value
	case "Depends", "Pre-Depends", "Recommends", "Suggests",
		"Conflicts", "Breaks", "Replaces", "Provides":
		relations, err := NormalizeRelations(value)
		if err != nil {
			return models.NewError(models.ErrMissingControlFields, pkg.Name, "malformed %s: %v", key, err)
		}
		if len(relations) > 0 {
			pkg.Relations[key] = relations
		}
	default:
		if !computed[key] {
			// Store other fields in metadata
			pkg.Extra[key] = value
		}
	}
	return nil
}

func validateIdentity(pkg *models.Package) error {
	var missing []string
	if pkg.Name == "" {
		missing = append(missing, "Package")
	}
	if pkg.Version == "" {
		missing = append(missing, "Version")
	}
	if pkg.Architecture == "" {
		missing = append(missing, "Architecture")
	}
	if len(missing) > 0 {
		return models.NewError(models.ErrMissingControlFields, pkg.Identity(),
			"missing required fields: %s", strings.Join(missing, ", "))
	}

	if !nameRe.MatchString(pkg.Name) {
		return models.NewError(models.ErrMissingControlFields, pkg.Identity(), "malformed package name %q", pkg.Name)
	}
	if _, err := ParseVersion(pkg.Version); err != nil {
		return models.NewError(models.ErrMissingControlFields, pkg.Identity(), "malformed version: %v", err)
	}
	if !archRe.MatchString(pkg.Architecture) {
		return models.NewError(models.ErrMissingControlFields, pkg.Identity(), "malformed architecture %q", pkg.Architecture)
	}
	return nil
}

// ValidateIdentity checks a name/version/arch triple given by a caller
// rather than read from an archive. Malformed parts are InvalidConfig.
func ValidateIdentity(name, version, arch string) error {
	key := name + ":" + version + ":" + arch
	if !nameRe.MatchString(name) {
		return models.NewError(models.ErrInvalidConfig, key, "malformed package name %q", name)
	}
	if _, err := ParseVersion(version); err != nil {
		return models.NewError(models.ErrInvalidConfig, key, "malformed version: %v", err)
	}
	if !archRe.MatchString(arch) {
		return models.NewError(models.ErrInvalidConfig, key, "malformed architecture %q", arch)
	}
	return nil
}

// NormalizeRelations parses a relation field (e.g. Depends) and renders
// each comma separated relation in canonical form. Relations are not
// resolved against any other package.
func NormalizeRelations(value string) ([]string, error) {
	value = strings.TrimSpace(strings.ReplaceAll(value, "\n", " "))
	if value == "" {
		return nil, nil
	}

	dep, err := dependency.Parse(value)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(dep.Relations))
	for _, rel := range dep.Relations {
		out = append(out, rel.String())
	}
	return out, nil
}

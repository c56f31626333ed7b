package deb

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/ralt/aptpool/internal/debfile"
	"github.com/ralt/aptpool/internal/models"
)

// SortPackages orders records by name (byte-wise), then version, then
// architecture
func SortPackages(packages []models.Package) {
	sort.SliceStable(packages, func(i, j int) bool {
		a, b := packages[i], packages[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if c := debfile.CompareVersions(a.Version, b.Version); c != 0 {
			return c < 0
		}
		return a.Architecture < b.Architecture
	})
}

// GeneratePackagesFile creates a Debian Packages file from package
// records, in the order given
func GeneratePackagesFile(packages []models.Package) []byte {
	var buf bytes.Buffer

	for i, pkg := range packages {
		if i > 0 {
			// Blank line between packages
			buf.WriteString("\n")
		}

		// Required fields
		writeField(&buf, "Package", pkg.Name)
		writeField(&buf, "Version", pkg.Version)
		writeField(&buf, "Architecture", pkg.Architecture)

		// Optional fields
		writeField(&buf, "Maintainer", pkg.Maintainer)
		writeField(&buf, "Installed-Size", pkg.InstalledSize)
		for _, key := range models.RelationFields {
			if rels := pkg.Relations[key]; len(rels) > 0 {
				writeField(&buf, key, strings.Join(rels, ", "))
			}
		}
		writeField(&buf, "Homepage", pkg.Homepage)
		writeField(&buf, "Description", pkg.Description)

		// Add other control fields in a stable order
		keys := make([]string, 0, len(pkg.Extra))
		for key := range pkg.Extra {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			writeField(&buf, key, pkg.Extra[key])
		}

		// File information
		writeField(&buf, "Filename", pkg.Filename)
		writeField(&buf, "Size", strconv.FormatInt(pkg.Size, 10))
		writeField(&buf, "MD5sum", pkg.MD5Sum)
		writeField(&buf, "SHA1", pkg.SHA1Sum)
		writeField(&buf, "SHA256", pkg.SHA256Sum)
		writeField(&buf, "SHA512", pkg.SHA512Sum)
	}

	return buf.Bytes()
}

// writeField writes "Key: value", folding extra lines as continuation lines
func writeField(buf *bytes.Buffer, key, value string) {
	if value == "" {
		return
	}
	lines := strings.Split(value, "\n")
	fmt.Fprintf(buf, "%s: %s\n", key, lines[0])
	for _, line := range lines[1:] {
		if line == "" {
			line = "."
		}
		fmt.Fprintf(buf, " %s\n", line)
	}
}

// ParsePackagesIndex reads a Packages file back into records
func ParsePackagesIndex(r io.Reader) ([]models.Package, error) {
	var packages []models.Package
	var paragraph bytes.Buffer

	flush := func() error {
		if paragraph.Len() == 0 {
			return nil
		}
		fields, err := debfile.ParseParagraph(paragraph.Bytes())
		paragraph.Reset()
		if err != nil {
			return err
		}
		pkg, err := packageFromFields(fields)
		if err != nil {
			return err
		}
		packages = append(packages, *pkg)
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		// Empty line = end of package entry
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		paragraph.WriteString(line)
		paragraph.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Don't forget last package
	if err := flush(); err != nil {
		return nil, err
	}
	return packages, nil
}

func packageFromFields(fields []debfile.Field) (*models.Package, error) {
	pkg := &models.Package{
		Relations: make(map[string][]string),
		Extra:     make(map[string]string),
	}

	for _, f := range fields {
		switch f.Key {
		case "Package":
			pkg.Name = f.Value
		case "Version":
			pkg.Version = f.Value
		case "Architecture":
			pkg.Architecture = f.Value
		case "Maintainer":
			pkg.Maintainer = f.Value
		case "Installed-Size":
			pkg.InstalledSize = f.Value
		case "Homepage":
			pkg.Homepage = f.Value
		case "Description":
			pkg.Description = f.Value
		case "Filename":
			pkg.Filename = f.Value
		case "Size":
			size, err := strconv.ParseInt(f.Value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("package %s: bad Size %q", pkg.Name, f.Value)
			}
			pkg.Size = size
		case "MD5sum", "MD5Sum":
			pkg.MD5Sum = f.Value
		case "SHA1":
			pkg.SHA1Sum = f.Value
		case "SHA256":
			pkg.SHA256Sum = f.Value
		case "SHA512":
			pkg.SHA512Sum = f.Value
		case "Depends", "Pre-Depends", "Recommends", "Suggests",
			"Conflicts", "Breaks", "Replaces", "Provides":
			pkg.Relations[f.Key] = strings.Split(f.Value, ", ")
		default:
			pkg.Extra[f.Key] = f.Value
		}
	}
	return pkg, nil
}

// browserEntry is one archive in the web file browser map
type browserEntry struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	Package      string `json:"package"`
	Version      string `json:"version"`
	Architecture string `json:"architecture"`
	Desc         string `json:"desc"`
}

// GenerateBrowserMap renders packages.json, the folder map the landing
// page uses to browse the pool: {prefix: {directory: [archive...]}}
func GenerateBrowserMap(indexes []*models.PackageIndex) ([]byte, error) {
	folders := make(map[string]map[string][]browserEntry)
	seen := make(map[string]bool)

	for _, idx := range indexes {
		for _, pkg := range idx.Records {
			// Arch: all records appear in every index
			if seen[pkg.Filename] {
				continue
			}
			seen[pkg.Filename] = true

			parts := strings.Split(pkg.Filename, "/")
			prefix, dir := pool0(pkg.Name), pkg.Name
			if len(parts) >= 5 {
				prefix, dir = parts[2], parts[3]
			}

			if folders[prefix] == nil {
				folders[prefix] = make(map[string][]browserEntry)
			}
			folders[prefix][dir] = append(folders[prefix][dir], browserEntry{
				Name:         path.Base(pkg.Filename),
				Path:         pkg.Filename,
				Size:         pkg.Size,
				Package:      pkg.Name,
				Version:      pkg.Version,
				Architecture: pkg.Architecture,
				Desc:         strings.SplitN(pkg.Description, "\n", 2)[0],
			})
		}
	}

	for _, dirs := range folders {
		for _, entries := range dirs {
			sort.Slice(entries, func(i, j int) bool {
				return entries[i].Path < entries[j].Path
			})
		}
	}

	data, err := json.MarshalIndent(folders, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func pool0(name string) string {
	if name == "" {
		return "."
	}
	return strings.ToLower(name[:1])
}

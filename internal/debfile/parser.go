package debfile

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ralt/aptpool/internal/models"
	"github.com/ralt/aptpool/internal/utils"
	"github.com/ulikunitz/xz"
)

const (
	arMagic      = "!<arch>\n"
	arHeaderSize = 60

	// control archives are a few KiB; anything this large is not a package
	maxControlSize = 64 << 20
)

// ParsePackage parses a .deb file and extracts metadata. Filename is left
// empty; the pool decides where the archive lives.
func ParsePackage(path string) (*models.Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &models.PoolError{Type: models.ErrFileOp, Key: path, Err: err}
	}
	defer f.Close()

	pkg, err := ParseReader(f)
	if err != nil {
		return nil, withKey(err, path)
	}
	return pkg, nil
}

// ParseReader parses a .deb archive from r in a single pass. Size and
// checksums cover every byte of the archive, not just the control member.
func ParseReader(r io.Reader) (*models.Package, error) {
	h := utils.NewHasher()
	tr := io.TeeReader(r, h)

	control, err := extractControl(tr)
	if err != nil {
		return nil, err
	}

	// Drain the data member so the checksums describe the whole file
	if _, err := io.Copy(io.Discard, tr); err != nil {
		return nil, models.NewError(models.ErrCorruptArchive, "", "failed to read archive: %v", err)
	}

	pkg, err := recordFromControl(control)
	if err != nil {
		return nil, err
	}

	sum := h.Sum()
	pkg.Size = sum.Size
	pkg.MD5Sum = sum.MD5
	pkg.SHA1Sum = sum.SHA1
	pkg.SHA256Sum = sum.SHA256
	pkg.SHA512Sum = sum.SHA512

	return pkg, nil
}

func corrupt(format string, args ...interface{}) error {
	return models.NewError(models.ErrCorruptArchive, "", format, args...)
}

// extractControl extracts the control file from a .deb package stream
func extractControl(r io.Reader) ([]byte, error) {
	// .deb files are ar archives
	magic := make([]byte, len(arMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != arMagic {
		return nil, corrupt("not an ar archive")
	}

	for member := 0; ; member++ {
		arHeader := make([]byte, arHeaderSize)
		if _, err := io.ReadFull(r, arHeader); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, corrupt("truncated ar header")
		}
		if string(arHeader[58:60]) != "`\n" {
			return nil, corrupt("bad ar header terminator")
		}

		// Parse filename (first 16 bytes, space-padded)
		// Also trim trailing slash that ar format may include
		filename := strings.TrimRight(strings.TrimSpace(string(arHeader[0:16])), "/")

		// Parse file size (bytes 48-58, decimal)
		size, err := strconv.ParseInt(strings.TrimSpace(string(arHeader[48:58])), 10, 64)
		if err != nil || size < 0 {
			return nil, corrupt("bad size for ar member %q", filename)
		}

		if member == 0 && filename != "debian-binary" {
			return nil, corrupt("first ar member is %q, want debian-binary", filename)
		}

		// Check if this is the control archive
		if strings.HasPrefix(filename, "control.tar") {
			if size > maxControlSize {
				return nil, corrupt("control archive is %d bytes", size)
			}
			data := make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, corrupt("truncated %s", filename)
			}
			if err := skipPadding(r, size); err != nil {
				return nil, err
			}
			return extractControlFromTar(data, filename)
		}

		// Skip this file's data
		if _, err := io.CopyN(io.Discard, r, size); err != nil {
			return nil, corrupt("truncated ar member %q", filename)
		}
		if err := skipPadding(r, size); err != nil {
			return nil, err
		}
	}

	return nil, corrupt("control.tar not found in package")
}

// skipPadding consumes the byte aligning odd-sized members to 2 bytes
func skipPadding(r io.Reader, size int64) error {
	if size%2 == 0 {
		return nil
	}
	var pad [1]byte
	if _, err := io.ReadFull(r, pad[:]); err != nil && !errors.Is(err, io.EOF) {
		return corrupt("truncated ar padding")
	}
	return nil
}

// extractControlFromTar extracts the control file from control.tar*
func extractControlFromTar(data []byte, filename string) ([]byte, error) {
	var tarReader *tar.Reader

	// Decompress based on extension
	switch {
	case strings.HasSuffix(filename, ".gz"):
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, corrupt("%s: %v", filename, err)
		}
		defer gr.Close()
		tarReader = tar.NewReader(gr)
	case strings.HasSuffix(filename, ".xz"):
		xr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, corrupt("%s: %v", filename, err)
		}
		tarReader = tar.NewReader(xr)
	case strings.HasSuffix(filename, ".zst"):
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, corrupt("%s: %v", filename, err)
		}
		defer zr.Close()
		tarReader = tar.NewReader(zr)
	case filename == "control.tar":
		tarReader = tar.NewReader(bytes.NewReader(data))
	default:
		return nil, corrupt("unsupported control archive %q", filename)
	}

	// Find and read control file
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, corrupt("%s: %v", filename, err)
		}

		if header.Name == "./control" || header.Name == "control" {
			control, err := io.ReadAll(tarReader)
			if err != nil {
				return nil, corrupt("%s: %v", filename, err)
			}
			return control, nil
		}
	}

	return nil, corrupt("control file not found in %s", filename)
}

// withKey attaches key to a PoolError that has none
func withKey(err error, key string) error {
	var pe *models.PoolError
	if errors.As(err, &pe) {
		if pe.Key == "" {
			pe.Key = key
		}
		return err
	}
	return fmt.Errorf("%s: %w", key, err)
}

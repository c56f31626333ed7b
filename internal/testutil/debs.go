// Package testutil builds package archives and signing keys for tests.
package testutil

import (
	"archive/tar"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Control renders a minimal control paragraph. Extra lines are appended
// verbatim, e.g. "Depends: libc6 (>= 2.17)".
func Control(name, version, arch string, extra ...string) string {
	lines := []string{
		"Package: " + name,
		"Version: " + version,
		"Architecture: " + arch,
		"Maintainer: Test Maintainer <test@example.com>",
		"Description: " + name + " test package",
	}
	lines = append(lines, extra...)
	return strings.Join(lines, "\n") + "\n"
}

// DebOptions tunes the archive layout
type DebOptions struct {
	// ControlCompression is "gz" (default), "xz", "zst" or "none"
	ControlCompression string
	// Payload is written as data.tar.gz content to vary archive bytes
	Payload []byte
}

// BuildDeb assembles a .deb archive around control. It panics on error
// because it only runs inside tests.
func BuildDeb(control string, opts DebOptions) []byte {
	data, err := buildDeb(control, opts)
	if err != nil {
		panic(err)
	}
	return data
}

// SimpleDeb builds name_version_arch with a gzip control archive
func SimpleDeb(name, version, arch string, extra ...string) []byte {
	return BuildDeb(Control(name, version, arch, extra...), DebOptions{})
}

func buildDeb(control string, opts DebOptions) ([]byte, error) {
	controlTar, err := tarFile("./control", []byte(control))
	if err != nil {
		return nil, err
	}

	ext := opts.ControlCompression
	if ext == "" {
		ext = "gz"
	}
	controlName := "control.tar"
	switch ext {
	case "none":
	default:
		controlTar, err = compress(ext, controlTar)
		if err != nil {
			return nil, err
		}
		controlName += "." + ext
	}

	payload := opts.Payload
	if payload == nil {
		payload = []byte("payload\n")
	}
	dataTar, err := tarFile("./usr/share/doc/payload", payload)
	if err != nil {
		return nil, err
	}
	dataTar, err = compress("gz", dataTar)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("!<arch>\n")
	for _, m := range []struct {
		name string
		data []byte
	}{
		{"debian-binary", []byte("2.0\n")},
		{controlName, controlTar},
		{"data.tar.gz", dataTar},
	} {
		fmt.Fprintf(&buf, "%-16s%-12d%-6d%-6d%-8s%-10d`\n", m.name, 0, 0, 0, "100644", len(m.data))
		buf.Write(m.data)
		if len(m.data)%2 != 0 {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

func tarFile(name string, content []byte) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:     name,
		Mode:     0644,
		Size:     int64(len(content)),
		Typeflag: tar.TypeReg,
		ModTime:  time.Unix(0, 0),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write(content); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func compress(ext string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch ext {
	case "gz":
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "xz":
		w, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "zst":
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown compression %q", ext)
	}
	return buf.Bytes(), nil
}

// WriteDeb writes archive bytes to dir/name and returns the path
func WriteDeb(dir, name string, data []byte) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0644)
}

// WriteSigningKey generates an unprotected OpenPGP key, writes it armored
// to dir/signing.asc and returns the path
func WriteSigningKey(dir string) (string, error) {
	entity, err := openpgp.NewEntity("aptpool test", "", "test@example.com", nil)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	if err != nil {
		return "", err
	}
	if err := entity.SerializePrivate(w, nil); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	path := filepath.Join(dir, "signing.asc")
	return path, os.WriteFile(path, buf.Bytes(), 0600)
}

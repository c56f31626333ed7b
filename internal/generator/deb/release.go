package deb

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ralt/aptpool/internal/models"
	"github.com/ralt/aptpool/internal/signer"
	"github.com/ralt/aptpool/internal/utils"
	"github.com/sirupsen/logrus"
)

// BuildRelease assembles the release descriptor of a suite from its
// architecture indexes. Architectures without records are left out;
// when none remain the suite cannot be published.
func BuildRelease(config *models.RepositoryConfig, suite string, indexes []*models.PackageIndex, now time.Time) (*models.ReleaseDescriptor, error) {
	codename := config.Codename
	if codename == "" {
		codename = suite
	}

	desc := &models.ReleaseDescriptor{
		Origin:      config.Origin,
		Label:       config.Label,
		Suite:       suite,
		Codename:    codename,
		Description: config.Description,
		Components:  []string{config.Component},
		Date:        now.UTC().Truncate(time.Second),
	}
	if config.Release.ValidFor > 0 {
		desc.ValidUntil = desc.Date.Add(config.Release.ValidFor)
	}

	for _, idx := range indexes {
		if len(idx.Records) == 0 {
			logrus.Debugf("Leaving empty architecture %s out of %s", idx.Architecture, suite)
			continue
		}
		desc.Architectures = append(desc.Architectures, idx.Architecture)

		for _, f := range idx.Files {
			sum := utils.CalculateDataChecksums(f.Data)
			desc.Files = append(desc.Files, models.ReleaseFile{
				Path:      f.Path,
				Size:      sum.Size,
				MD5Sum:    sum.MD5,
				SHA1Sum:   sum.SHA1,
				SHA256Sum: sum.SHA256,
				SHA512Sum: sum.SHA512,
			})
		}
	}

	if len(desc.Architectures) == 0 {
		return nil, models.NewError(models.ErrEmptyArchitectureSet, suite, "no architecture has any package")
	}

	desc.Release = GenerateReleaseFile(desc)
	desc.InRelease = desc.Release
	return desc, nil
}

// GenerateReleaseFile creates a Debian Release file
func GenerateReleaseFile(desc *models.ReleaseDescriptor) []byte {
	var buf bytes.Buffer

	// Required fields
	fmt.Fprintf(&buf, "Origin: %s\n", desc.Origin)
	fmt.Fprintf(&buf, "Label: %s\n", desc.Label)
	fmt.Fprintf(&buf, "Suite: %s\n", desc.Suite)
	fmt.Fprintf(&buf, "Codename: %s\n", desc.Codename)
	fmt.Fprintf(&buf, "Date: %s\n", desc.Date.UTC().Format(time.RFC1123Z))
	if !desc.ValidUntil.IsZero() {
		fmt.Fprintf(&buf, "Valid-Until: %s\n", desc.ValidUntil.UTC().Format(time.RFC1123Z))
	}
	fmt.Fprintf(&buf, "Architectures: %s\n", strings.Join(desc.Architectures, " "))
	fmt.Fprintf(&buf, "Components: %s\n", strings.Join(desc.Components, " "))
	if desc.Description != "" {
		fmt.Fprintf(&buf, "Description: %s\n", desc.Description)
	}

	sections := []struct {
		name string
		sum  func(f models.ReleaseFile) string
	}{
		{"MD5Sum", func(f models.ReleaseFile) string { return f.MD5Sum }},
		{"SHA1", func(f models.ReleaseFile) string { return f.SHA1Sum }},
		{"SHA256", func(f models.ReleaseFile) string { return f.SHA256Sum }},
		{"SHA512", func(f models.ReleaseFile) string { return f.SHA512Sum }},
	}
	for _, section := range sections {
		fmt.Fprintf(&buf, "%s:\n", section.name)
		for _, f := range desc.Files {
			fmt.Fprintf(&buf, " %s %16d %s\n", section.sum(f), f.Size, f.Path)
		}
	}

	return buf.Bytes()
}

// ParseReleaseFile reads the fields and file checksums of a Release file.
// Signed documents are not accepted; pass the plain Release.
func ParseReleaseFile(data []byte) (*models.ReleaseDescriptor, error) {
	desc := &models.ReleaseDescriptor{Release: data}
	files := make(map[string]*models.ReleaseFile)
	var order []string
	section := ""

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		if line[0] == ' ' {
			parts := strings.Fields(line)
			if section == "" || len(parts) != 3 {
				return nil, fmt.Errorf("malformed release line %q", line)
			}
			size, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed size in %q", line)
			}

			f, ok := files[parts[2]]
			if !ok {
				f = &models.ReleaseFile{Path: parts[2], Size: size}
				files[parts[2]] = f
				order = append(order, parts[2])
			}
			switch section {
			case "MD5Sum":
				f.MD5Sum = parts[0]
			case "SHA1":
				f.SHA1Sum = parts[0]
			case "SHA256":
				f.SHA256Sum = parts[0]
			case "SHA512":
				f.SHA512Sum = parts[0]
			}
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("malformed release line %q", line)
		}
		value = strings.TrimSpace(value)
		section = ""

		switch key {
		case "Origin":
			desc.Origin = value
		case "Label":
			desc.Label = value
		case "Suite":
			desc.Suite = value
		case "Codename":
			desc.Codename = value
		case "Description":
			desc.Description = value
		case "Architectures":
			desc.Architectures = strings.Fields(value)
		case "Components":
			desc.Components = strings.Fields(value)
		case "Date", "Valid-Until":
			t, err := time.Parse(time.RFC1123Z, value)
			if err != nil {
				return nil, fmt.Errorf("malformed %s: %w", key, err)
			}
			if key == "Date" {
				desc.Date = t
			} else {
				desc.ValidUntil = t
			}
		case "MD5Sum", "SHA1", "SHA256", "SHA512":
			section = key
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for _, p := range order {
		desc.Files = append(desc.Files, *files[p])
	}
	return desc, nil
}

// Sign attaches InRelease and Release.gpg signatures to desc. A nil signer
// publishes unsigned, with InRelease a copy of Release. Signing failures
// are SigningUnavailable unless optional is set, in which case the
// descriptor stays unsigned.
func Sign(desc *models.ReleaseDescriptor, s signer.Signer, optional bool) error {
	desc.InRelease = desc.Release
	desc.Signature = nil
	desc.PublicKey = nil

	if s == nil {
		logrus.Warn("No signer configured, repository will be unsigned")
		return nil
	}

	inRelease, signature, publicKey, err := sign(desc.Release, s)
	if err != nil {
		if optional {
			logrus.WithError(err).Warn("Signing failed, publishing unsigned")
			return nil
		}
		return &models.PoolError{Type: models.ErrSigningUnavailable, Key: desc.Suite, Err: err}
	}

	desc.InRelease = inRelease
	desc.Signature = signature
	desc.PublicKey = publicKey
	logrus.Info("Release file signed successfully")
	return nil
}

func sign(release []byte, s signer.Signer) (inRelease, signature, publicKey []byte, err error) {
	// Create InRelease (cleartext signed)
	if inRelease, err = s.SignCleartext(release); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to sign InRelease: %w", err)
	}

	// Create Release.gpg (detached signature)
	if signature, err = s.SignDetached(release); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create Release.gpg: %w", err)
	}

	if publicKey, err = s.GetPublicKey(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to export public key: %w", err)
	}
	return inRelease, signature, publicKey, nil
}

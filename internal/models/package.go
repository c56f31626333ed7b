package models

import (
	"fmt"
	"time"
)

// Relation field names in the order they appear in an index stanza.
var RelationFields = []string{
	"Depends",
	"Pre-Depends",
	"Recommends",
	"Suggests",
	"Conflicts",
	"Breaks",
	"Replaces",
	"Provides",
}

// Package represents one binary package version with its metadata
type Package struct {
	// Core metadata
	Name          string
	Version       string
	Architecture  string
	Description   string
	Maintainer    string
	Homepage      string
	InstalledSize string

	// Relations keyed by control field name (Depends, Pre-Depends, ...),
	// each an ordered sequence of normalized relation expressions.
	Relations map[string][]string

	// File information
	Filename  string
	Size      int64
	MD5Sum    string
	SHA1Sum   string
	SHA256Sum string
	SHA512Sum string

	// Remaining control fields, emitted in sorted key order
	Extra map[string]string
}

// Identity returns the name:version:architecture triple.
func (p *Package) Identity() string {
	return fmt.Sprintf("%s:%s:%s", p.Name, p.Version, p.Architecture)
}

// Depends returns the normalized Depends relations.
func (p *Package) Depends() []string {
	return p.Relations["Depends"]
}

// Validate checks the record invariants that every index relies on.
func (p *Package) Validate() error {
	if p.Name == "" || p.Version == "" || p.Architecture == "" {
		return NewError(ErrMissingControlFields, p.Identity(), "package, version and architecture are required")
	}
	if len(p.SHA256Sum) != 64 {
		return NewError(ErrCorruptArchive, p.Identity(), "missing sha256 checksum")
	}
	return nil
}

// PoolEntry is a package archive stored in the pool.
type PoolEntry struct {
	Path         string // relative to the repository root, e.g. pool/main/c/curl/curl_1.0_aarch64.deb
	Name         string
	Version      string
	Architecture string
	Size         int64
	SHA256Sum    string // set when known (Add); List leaves it empty
	Existing     bool   // Add found identical content already stored
}

// Identity returns the name:version:architecture triple.
func (e *PoolEntry) Identity() string {
	return fmt.Sprintf("%s:%s:%s", e.Name, e.Version, e.Architecture)
}

// IndexFile is one serialized file of a package index.
type IndexFile struct {
	Path string // relative to the suite directory, e.g. main/binary-aarch64/Packages.gz
	Data []byte
}

// PackageIndex is the full catalog of one architecture.
type PackageIndex struct {
	Architecture string
	Records      []Package
	Files        []IndexFile

	// Skipped maps pool paths to the extraction error that excluded them.
	Skipped map[string]error
}

// ReleaseFile describes one file referenced by a release descriptor.
type ReleaseFile struct {
	Path      string
	Size      int64
	MD5Sum    string
	SHA1Sum   string
	SHA256Sum string
	SHA512Sum string
}

// ReleaseDescriptor is the top-level metadata document of a suite.
type ReleaseDescriptor struct {
	Origin        string
	Label         string
	Suite         string
	Codename      string
	Description   string
	Components    []string
	Architectures []string
	Date          time.Time
	ValidUntil    time.Time // zero when no expiry is configured
	Files         []ReleaseFile

	Release   []byte // serialized Release document
	InRelease []byte // cleartext-signed Release, or a copy when unsigned
	Signature []byte // detached signature, nil when unsigned
	PublicKey []byte // armored public key of the signer, nil when unsigned
}

// Signed reports whether the descriptor carries a signature.
func (r *ReleaseDescriptor) Signed() bool {
	return len(r.Signature) > 0
}

// Generation is one published snapshot of a suite.
type Generation struct {
	ID      string
	Suite   string
	Created time.Time
	Live    bool
}

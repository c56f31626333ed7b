package utils

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"os"
)

// Checksum contains various checksums for a file
type Checksum struct {
	MD5    string
	SHA1   string
	SHA256 string
	SHA512 string
	Size   int64
}

// Equal reports whether both checksum sets describe the same content.
func (c *Checksum) Equal(other *Checksum) bool {
	return c.Size == other.Size &&
		c.MD5 == other.MD5 &&
		c.SHA1 == other.SHA1 &&
		c.SHA256 == other.SHA256 &&
		c.SHA512 == other.SHA512
}

// Hasher computes every checksum of a stream in a single pass. It is an
// io.Writer so it can sit behind an io.TeeReader.
type Hasher struct {
	md5    hash.Hash
	sha1   hash.Hash
	sha256 hash.Hash
	sha512 hash.Hash
	w      io.Writer
	size   int64
}

// NewHasher creates a Hasher with all hash states reset
func NewHasher() *Hasher {
	h := &Hasher{
		md5:    md5.New(),
		sha1:   sha1.New(),
		sha256: sha256.New(),
		sha512: sha512.New(),
	}
	h.w = io.MultiWriter(h.md5, h.sha1, h.sha256, h.sha512)
	return h
}

// Write feeds p to every hash
func (h *Hasher) Write(p []byte) (int, error) {
	n, err := h.w.Write(p)
	h.size += int64(n)
	return n, err
}

// Sum returns the checksums of everything written so far
func (h *Hasher) Sum() *Checksum {
	return &Checksum{
		MD5:    hex.EncodeToString(h.md5.Sum(nil)),
		SHA1:   hex.EncodeToString(h.sha1.Sum(nil)),
		SHA256: hex.EncodeToString(h.sha256.Sum(nil)),
		SHA512: hex.EncodeToString(h.sha512.Sum(nil)),
		Size:   h.size,
	}
}

// CalculateChecksums calculates all checksums for a file in a single pass
func CalculateChecksums(path string) (*Checksum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return CalculateReaderChecksums(f)
}

// CalculateReaderChecksums calculates all checksums of r until EOF
func CalculateReaderChecksums(r io.Reader) (*Checksum, error) {
	h := NewHasher()
	if _, err := io.Copy(h, r); err != nil {
		return nil, err
	}
	return h.Sum(), nil
}

// CalculateDataChecksums calculates all checksums for in-memory data
func CalculateDataChecksums(data []byte) *Checksum {
	// Hasher never fails on in-memory input
	sum, _ := CalculateReaderChecksums(bytes.NewReader(data))
	return sum
}

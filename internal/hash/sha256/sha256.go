// Package sha256 provides SHA-256 hashing for cache and object keys.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements serp.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Short returns the first n hex characters of the digest, or all of it when n is out of range.
func (h *Hasher) Short(data []byte, n int) string {
	digest, _ := h.Hash(data)
	if n <= 0 || n >= len(digest) {
		return digest
	}
	return digest[:n]
}

// Package hash provides hashing utilities for cache keys.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256 computes the SHA256 hash of data and returns it as a hex string.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SHA256String computes the SHA256 hash of a string.
func SHA256String(s string) string {
	return SHA256([]byte(s))
}

// SHA256Short returns the first n characters of a SHA256 hash.
func SHA256Short(data []byte, n int) string {
	h := SHA256(data)
	if n > len(h) {
		return h
	}
	return h[:n]
}

// VectorKey generates the embedding cache key for a normalized query text.
func VectorKey(normalizedText string) string {
	return SHA256String(normalizedText)
}

// ResultKey generates the result cache key for a normalized query text and
// its canonical filter string. Distinct filters must never collide.
func ResultKey(normalizedText, canonicalFilters string) string {
	return SHA256String(normalizedText + "|" + canonicalFilters)
}

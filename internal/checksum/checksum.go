// Package checksum fingerprints backup entries and on-disk documents.
package checksum

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Verify reports whether data hashes to want.
func Verify(data []byte, want string) bool {
	got := Sum(data)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

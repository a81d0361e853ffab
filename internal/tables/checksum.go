package tables

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum computes the SHA256 checksum of a dataset payload,
// prefixed with the algorithm name.
func Checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// VerifyChecksum reports whether data matches the expected checksum.
func VerifyChecksum(data []byte, expected string) bool {
	return Checksum(data) == expected
}

// Package mask turns identifying strings into stable one-way digests so
// records can be joined on masked columns without storing raw values.
package mask

import (
	"crypto/sha256"
	"encoding/hex"
)

// Len is the length of every digest returned by Value.
const Len = sha256.Size * 2

// Value returns the lowercase hex SHA-256 of s. Any input, including the
// empty string, is accepted.
func Value(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

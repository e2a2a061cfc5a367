// Package fingerprint derives cache keys from query text.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Size is the length of a fingerprint in characters.
const Size = sha256.Size * 2

// Of returns the hex SHA-256 of the lower-cased text. Whitespace,
// punctuation and word order are significant.
func Of(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(text)))
	return hex.EncodeToString(sum[:])
}

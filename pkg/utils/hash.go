package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashString returns the hex SHA-256 of input. Used as a cache key for
// embeddings and signal lookups.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// HashStrings fingerprints an ordered list of strings. Each element is
// length-prefixed so ["ab","c"] and ["a","bc"] hash differently.
func HashStrings(inputs []string) string {
	h := sha256.New()
	var prefix [8]byte
	for _, s := range inputs {
		n := uint64(len(s))
		for i := 0; i < 8; i++ {
			prefix[i] = byte(n >> (8 * i))
		}
		h.Write(prefix[:])
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}

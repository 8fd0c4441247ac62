package ledger

import (
	"encoding/hex"
	"strings"

	sha256 "github.com/minio/sha256-simd"
)

// DigestSize is the length of a hex digest in characters.
const DigestSize = sha256.Size * 2

// Digest returns the hex SHA-256 of the concatenation of parts. It is used
// identically for record digests and block hashes.
func Digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashMeetsDifficulty reports whether hash starts with at least difficulty
// zero hex characters.
func HashMeetsDifficulty(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if difficulty > len(hash) {
		return false
	}
	return strings.Count(hash[:difficulty], "0") == difficulty
}

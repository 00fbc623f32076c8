package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
)

// KeyLen is the length of a content key in hex characters.
const KeyLen = sha256.Size * 2

// Key returns the content key for a tracked URL: the lowercase hex SHA-256
// of the URL bytes. It is used only as a storage identifier.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// IsKey reports whether s has the shape of a content key.
func IsKey(s string) bool {
	if len(s) != KeyLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

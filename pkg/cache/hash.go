package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Keyer names cache entries.
type Keyer interface {
	// SanitizeKey names the sanitized form of content produced by the
	// sanitizer at version.
	SanitizeKey(version string, content []byte) string
}

// DefaultKeyer derives keys from SHA-256 digests.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the standard keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// SanitizeKey returns "sanitize:<hash>", where hash covers both the version
// and the content digest.
func (DefaultKeyer) SanitizeKey(version string, content []byte) string {
	return hashKey("sanitize", version, Hash(content))
}

// hashKey generates a cache key by hashing the components.
// The key format is: prefix:hash(parts...)
func hashKey(prefix string, parts ...any) string {
	data, _ := json.Marshal(parts)
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(hash[:]))
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

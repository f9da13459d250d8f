package shared

import (
	"crypto/sha256"
	"encoding/hex"
)

// IdentityHasher turns an investor identity into a one-way digest suitable for storage
type IdentityHasher interface {
	Hash(identity string) string
}

// SHA256Hasher hashes identities with SHA-256 and returns lowercase hex
type SHA256Hasher struct{}

// NewSHA256Hasher creates the default identity hasher
func NewSHA256Hasher() *SHA256Hasher {
	return &SHA256Hasher{}
}

func (SHA256Hasher) Hash(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])
}

// HashPrefix shortens a digest for log output
func HashPrefix(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}

package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Digest is a SHA-256 hash.
type Digest [DigestSize]byte

// ContentDigest returns SHA-256(ciphertext). The digest always covers the
// ciphertext so any holder can check integrity without decrypting.
func ContentDigest(ciphertext []byte) Digest {
	return sha256.Sum256(ciphertext)
}

// IsZero reports whether d is all zeros.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Equal compares two digests in constant time.
func (d Digest) Equal(other Digest) bool {
	return subtle.ConstantTimeCompare(d[:], other[:]) == 1
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

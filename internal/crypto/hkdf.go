package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey derives a key using HKDF-SHA-512.
func DeriveKey(secret, salt, info []byte, length int) ([]byte, error) {
	if len(salt) == 0 {
		salt = make([]byte, sha512.Size)
	}

	reader := hkdf.New(sha512.New, secret, salt, info)
	key := make([]byte, length)

	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	return key, nil
}

// deriveKEK derives the key-encryption key for ML-KEM wrapping.
//
//   - IKM: the KEM shared secret
//   - Salt: SHA-256 of the KEM ciphertext
//   - Info: KeyWrapContext
func deriveKEK(sharedSecret, ctKem []byte) ([]byte, error) {
	salt := sha256.Sum256(ctKem)
	return DeriveKey(sharedSecret, salt[:], []byte(KeyWrapContext), AESKeySize)
}

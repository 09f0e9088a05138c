package crypto

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
)

// RSAPublicKey wraps keys with RSA-OAEP-SHA256.
type RSAPublicKey struct {
	key *rsa.PublicKey
}

// RSAPrivateKey unwraps keys wrapped with RSA-OAEP-SHA256.
type RSAPrivateKey struct {
	key *rsa.PrivateKey
}

// GenerateRSAKey creates a new RSA key pair with the given modulus size.
func GenerateRSAKey(bits int) (*RSAPrivateKey, error) {
	if bits < RSAMinBits {
		return nil, fmt.Errorf("%w: %d-bit modulus below minimum %d", ErrInvalidPrivateKey, bits, RSAMinBits)
	}
	key, err := rsa.GenerateKey(random(), bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return &RSAPrivateKey{key: key}, nil
}

// NewRSAPrivateKey adopts an existing RSA private key.
func NewRSAPrivateKey(key *rsa.PrivateKey) (*RSAPrivateKey, error) {
	if key == nil || key.N.BitLen() < RSAMinBits {
		return nil, ErrInvalidPrivateKey
	}
	return &RSAPrivateKey{key: key}, nil
}

func parseRSAPrivateKey(der []byte) (*RSAPrivateKey, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidPrivateKey)
	}
	return NewRSAPrivateKey(key)
}

func parseRSAPublicKey(der []byte) (*RSAPublicKey, error) {
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidPublicKey)
	}
	if key.N.BitLen() < RSAMinBits {
		return nil, fmt.Errorf("%w: %d-bit modulus below minimum %d", ErrInvalidPublicKey, key.N.BitLen(), RSAMinBits)
	}
	return &RSAPublicKey{key: key}, nil
}

// Scheme implements PublicKey.
func (k *RSAPublicKey) Scheme() string { return SchemeRSAOAEP }

// Wrap implements PublicKey.
func (k *RSAPublicKey) Wrap(key []byte) ([]byte, error) {
	wrapped, err := rsa.EncryptOAEP(sha256.New(), random(), k.key, key, nil)
	if err != nil {
		return nil, fmt.Errorf("rsa-oaep wrap: %w", err)
	}
	return wrapped, nil
}

// Bytes returns the PKIX DER encoding.
func (k *RSAPublicKey) Bytes() []byte {
	// MarshalPKIXPublicKey never fails for *rsa.PublicKey
	der, _ := x509.MarshalPKIXPublicKey(k.key)
	return der
}

// Scheme implements PrivateKey.
func (k *RSAPrivateKey) Scheme() string { return SchemeRSAOAEP }

// Public implements PrivateKey.
func (k *RSAPrivateKey) Public() PublicKey {
	return &RSAPublicKey{key: &k.key.PublicKey}
}

// Unwrap implements PrivateKey.
func (k *RSAPrivateKey) Unwrap(wrapped []byte) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), nil, k.key, wrapped, nil)
	if err != nil || len(key) != AESKeySize {
		return nil, ErrUnwrapFailed
	}
	return key, nil
}

// Bytes returns the PKCS#8 DER encoding.
func (k *RSAPrivateKey) Bytes() []byte {
	der, _ := x509.MarshalPKCS8PrivateKey(k.key)
	return der
}

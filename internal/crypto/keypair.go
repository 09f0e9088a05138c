package crypto

import "fmt"

// PublicKey wraps symmetric keys for a recipient.
type PublicKey interface {
	// Scheme returns the key wrapping scheme tag.
	Scheme() string
	// Wrap encrypts a raw symmetric key to the holder of the private key.
	Wrap(key []byte) ([]byte, error)
	// Bytes returns the scheme-specific encoding of the public key.
	Bytes() []byte
}

// PrivateKey unwraps symmetric keys wrapped to its public half.
type PrivateKey interface {
	Scheme() string
	Public() PublicKey
	// Unwrap recovers a raw symmetric key. Any failure is ErrUnwrapFailed.
	Unwrap(wrapped []byte) ([]byte, error)
	Bytes() []byte
}

// GenerateKey creates a new private key for the given scheme.
// An empty scheme selects SchemeRSAOAEP.
func GenerateKey(scheme string) (PrivateKey, error) {
	switch scheme {
	case "", SchemeRSAOAEP:
		return GenerateRSAKey(RSADefaultBits)
	case SchemeMLKEM768:
		return GenerateMLKEMKey()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}

// ParsePrivateKey decodes a private key produced by PrivateKey.Bytes.
func ParsePrivateKey(scheme string, data []byte) (PrivateKey, error) {
	switch scheme {
	case SchemeRSAOAEP:
		return parseRSAPrivateKey(data)
	case SchemeMLKEM768:
		return parseMLKEMPrivateKey(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}

// ParsePublicKey decodes a public key produced by PublicKey.Bytes.
func ParsePublicKey(scheme string, data []byte) (PublicKey, error) {
	switch scheme {
	case SchemeRSAOAEP:
		return parseRSAPublicKey(data)
	case SchemeMLKEM768:
		return parseMLKEMPublicKey(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}

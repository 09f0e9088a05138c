package crypto

import "errors"

var (
	// ErrNoKeyMaterial is returned when a message carries no key envelope.
	ErrNoKeyMaterial = errors.New("no key material")

	// ErrUnwrapFailed is returned when the symmetric key cannot be unwrapped
	// with any of the supplied private keys.
	ErrUnwrapFailed = errors.New("key unwrap failed")

	// ErrIntegrityMismatch is returned when the ciphertext digest differs
	// from the digest committed on the ledger.
	ErrIntegrityMismatch = errors.New("ciphertext integrity mismatch")

	// ErrAuthenticationFailed is returned when the AEAD tag does not verify.
	ErrAuthenticationFailed = errors.New("ciphertext authentication failed")

	// ErrInvalidKeySize is returned when the AES key size is invalid.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidNonceSize is returned when the nonce size is invalid.
	ErrInvalidNonceSize = errors.New("invalid nonce size")

	// ErrUnsupportedScheme is returned for an unknown key wrapping scheme.
	ErrUnsupportedScheme = errors.New("unsupported key wrapping scheme")

	// ErrInvalidPublicKey is returned when a public key cannot be parsed or
	// is too weak to wrap against.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrInvalidPrivateKey is returned when a private key cannot be parsed.
	ErrInvalidPrivateKey = errors.New("invalid private key")

	// ErrInvalidEnvelope is returned when an encoded envelope is malformed.
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

package crypto

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// ContentEnvelope is the stored form of an encrypted message body.
type ContentEnvelope struct {
	IV         [IVSize]byte
	Ciphertext []byte
}

// KeyEnvelope carries the symmetric key wrapped to the recipient.
type KeyEnvelope struct {
	Scheme     string
	Version    uint8
	WrappedKey []byte
}

// Sealed is the output of Encrypt.
type Sealed struct {
	Content ContentEnvelope
	// Key is nil when no recipient public key was available.
	Key    *KeyEnvelope
	Digest Digest
}

// Encrypt seals plaintext under a fresh AES-256-GCM key and IV and wraps
// the key to pub. A nil pub produces a Sealed without a key envelope; such
// a message can never be opened by the recipient.
func Encrypt(plaintext []byte, pub PublicKey) (*Sealed, error) {
	key := make([]byte, AESKeySize)
	if _, err := io.ReadFull(random(), key); err != nil {
		return nil, fmt.Errorf("generate content key: %w", err)
	}

	var iv [IVSize]byte
	if _, err := io.ReadFull(random(), iv[:]); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	ciphertext, err := sealAESGCM(key, iv[:], plaintext)
	if err != nil {
		return nil, err
	}

	sealed := &Sealed{
		Content: ContentEnvelope{IV: iv, Ciphertext: ciphertext},
		Digest:  ContentDigest(ciphertext),
	}

	if pub != nil {
		wrapped, err := pub.Wrap(key)
		if err != nil {
			return nil, fmt.Errorf("wrap content key: %w", err)
		}
		sealed.Key = &KeyEnvelope{
			Scheme:     pub.Scheme(),
			Version:    KeyEnvelopeVersion,
			WrappedKey: wrapped,
		}
	}

	return sealed, nil
}

// Decrypt opens a content envelope.
//
// The steps run in a fixed order and the first failure is returned:
//  1. ErrNoKeyMaterial if key is nil
//  2. ErrUnwrapFailed if priv cannot unwrap the key
//  3. ErrIntegrityMismatch if SHA-256(ciphertext) differs from expected
//  4. ErrAuthenticationFailed if the AEAD tag does not verify
//
// Plaintext is only produced once the digest has matched.
func Decrypt(content *ContentEnvelope, key *KeyEnvelope, priv PrivateKey, expected Digest) ([]byte, error) {
	if priv == nil {
		return DecryptWithKeyring(content, key, nil, expected)
	}
	return DecryptWithKeyring(content, key, []PrivateKey{priv}, expected)
}

// DecryptWithKeyring is Decrypt trying each private key whose scheme
// matches the key envelope, in order.
func DecryptWithKeyring(content *ContentEnvelope, key *KeyEnvelope, keyring []PrivateKey, expected Digest) ([]byte, error) {
	if content == nil {
		return nil, ErrInvalidEnvelope
	}
	if key == nil {
		return nil, ErrNoKeyMaterial
	}

	symmetric, err := unwrapWithKeyring(key, keyring)
	if err != nil {
		return nil, err
	}

	if !ContentDigest(content.Ciphertext).Equal(expected) {
		return nil, ErrIntegrityMismatch
	}

	return openAESGCM(symmetric, content.IV[:], content.Ciphertext)
}

func unwrapWithKeyring(key *KeyEnvelope, keyring []PrivateKey) ([]byte, error) {
	if key.Version != KeyEnvelopeVersion {
		return nil, fmt.Errorf("%w: key envelope version %d", ErrUnwrapFailed, key.Version)
	}
	for _, priv := range keyring {
		if priv == nil || priv.Scheme() != key.Scheme {
			continue
		}
		symmetric, err := priv.Unwrap(key.WrappedKey)
		if err == nil {
			return symmetric, nil
		}
		if !errors.Is(err, ErrUnwrapFailed) {
			return nil, err
		}
	}
	return nil, ErrUnwrapFailed
}

type contentEnvelopeWire struct {
	IV         []byte `cbor:"1,keyasint"`
	Ciphertext []byte `cbor:"2,keyasint"`
}

type keyEnvelopeWire struct {
	Scheme     string `cbor:"1,keyasint"`
	Version    uint8  `cbor:"2,keyasint"`
	WrappedKey []byte `cbor:"3,keyasint"`
}

// MarshalBinary encodes the envelope as CBOR.
func (e *ContentEnvelope) MarshalBinary() ([]byte, error) {
	return cbor.Marshal(contentEnvelopeWire{IV: e.IV[:], Ciphertext: e.Ciphertext})
}

// UnmarshalBinary decodes a CBOR content envelope.
func (e *ContentEnvelope) UnmarshalBinary(data []byte) error {
	var w contentEnvelopeWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if len(w.IV) != IVSize {
		return fmt.Errorf("%w: iv length %d", ErrInvalidEnvelope, len(w.IV))
	}
	copy(e.IV[:], w.IV)
	e.Ciphertext = w.Ciphertext
	return nil
}

// MarshalBinary encodes the envelope as CBOR.
func (e *KeyEnvelope) MarshalBinary() ([]byte, error) {
	return cbor.Marshal(keyEnvelopeWire{Scheme: e.Scheme, Version: e.Version, WrappedKey: e.WrappedKey})
}

// UnmarshalBinary decodes a CBOR key envelope.
func (e *KeyEnvelope) UnmarshalBinary(data []byte) error {
	var w keyEnvelopeWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if w.Scheme == "" || len(w.WrappedKey) == 0 {
		return fmt.Errorf("%w: empty key envelope", ErrInvalidEnvelope)
	}
	e.Scheme = w.Scheme
	e.Version = w.Version
	e.WrappedKey = w.WrappedKey
	return nil
}

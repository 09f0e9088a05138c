package crypto

import (
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// mlkemWrappedSize is ct_kem || nonce || AES-GCM(key) || tag.
const mlkemWrappedSize = mlkem768.CiphertextSize + IVSize + AESKeySize + AESTagSize

// MLKEMPublicKey wraps keys with an ML-KEM-768 encapsulation.
type MLKEMPublicKey struct {
	key kem.PublicKey
}

// MLKEMPrivateKey unwraps keys wrapped to an ML-KEM-768 public key.
type MLKEMPrivateKey struct {
	key kem.PrivateKey
	pub kem.PublicKey
}

// GenerateMLKEMKey creates a new ML-KEM-768 key pair.
func GenerateMLKEMKey() (*MLKEMPrivateKey, error) {
	pub, priv, err := mlkem768.GenerateKeyPair(random())
	if err != nil {
		return nil, fmt.Errorf("generate ml-kem key: %w", err)
	}
	return &MLKEMPrivateKey{key: priv, pub: pub}, nil
}

func parseMLKEMPrivateKey(data []byte) (*MLKEMPrivateKey, error) {
	if len(data) != mlkem768.PrivateKeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidPrivateKey, len(data), mlkem768.PrivateKeySize)
	}
	priv, err := mlkem768.Scheme().UnmarshalBinaryPrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return &MLKEMPrivateKey{key: priv, pub: priv.Public()}, nil
}

func parseMLKEMPublicKey(data []byte) (*MLKEMPublicKey, error) {
	if len(data) != mlkem768.PublicKeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidPublicKey, len(data), mlkem768.PublicKeySize)
	}
	pub, err := mlkem768.Scheme().UnmarshalBinaryPublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return &MLKEMPublicKey{key: pub}, nil
}

// Scheme implements PublicKey.
func (k *MLKEMPublicKey) Scheme() string { return SchemeMLKEM768 }

// Wrap implements PublicKey.
func (k *MLKEMPublicKey) Wrap(key []byte) ([]byte, error) {
	seed := make([]byte, mlkem768.EncapsulationSeedSize)
	if _, err := io.ReadFull(random(), seed); err != nil {
		return nil, fmt.Errorf("read encapsulation seed: %w", err)
	}
	ctKem, sharedSecret, err := mlkem768.Scheme().EncapsulateDeterministically(k.key, seed)
	if err != nil {
		return nil, fmt.Errorf("ml-kem encapsulate: %w", err)
	}

	kek, err := deriveKEK(sharedSecret, ctKem)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, IVSize)
	if _, err := io.ReadFull(random(), nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}

	sealed, err := sealAESGCM(kek, nonce, key)
	if err != nil {
		return nil, err
	}

	wrapped := make([]byte, 0, len(ctKem)+len(nonce)+len(sealed))
	wrapped = append(wrapped, ctKem...)
	wrapped = append(wrapped, nonce...)
	wrapped = append(wrapped, sealed...)
	return wrapped, nil
}

// Bytes returns the packed ML-KEM-768 public key.
func (k *MLKEMPublicKey) Bytes() []byte {
	// MarshalBinary never fails for valid keys
	b, _ := k.key.MarshalBinary()
	return b
}

// Scheme implements PrivateKey.
func (k *MLKEMPrivateKey) Scheme() string { return SchemeMLKEM768 }

// Public implements PrivateKey.
func (k *MLKEMPrivateKey) Public() PublicKey {
	return &MLKEMPublicKey{key: k.pub}
}

// Unwrap implements PrivateKey.
func (k *MLKEMPrivateKey) Unwrap(wrapped []byte) ([]byte, error) {
	if len(wrapped) != mlkemWrappedSize {
		return nil, ErrUnwrapFailed
	}

	ctKem := wrapped[:mlkem768.CiphertextSize]
	nonce := wrapped[mlkem768.CiphertextSize : mlkem768.CiphertextSize+IVSize]
	sealed := wrapped[mlkem768.CiphertextSize+IVSize:]

	sharedSecret, err := mlkem768.Scheme().Decapsulate(k.key, ctKem)
	if err != nil {
		return nil, ErrUnwrapFailed
	}

	kek, err := deriveKEK(sharedSecret, ctKem)
	if err != nil {
		return nil, ErrUnwrapFailed
	}

	key, err := openAESGCM(kek, nonce, sealed)
	if err != nil {
		return nil, ErrUnwrapFailed
	}
	return key, nil
}

// Bytes returns the packed ML-KEM-768 private key.
func (k *MLKEMPrivateKey) Bytes() []byte {
	b, _ := k.key.MarshalBinary()
	return b
}

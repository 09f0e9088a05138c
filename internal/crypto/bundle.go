package crypto

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// PublicKeyBundle is the published, self-describing form of a recipient's
// public key. Its SHA-256 is what the key directory records.
type PublicKeyBundle struct {
	Scheme string `cbor:"1,keyasint"`
	Key    []byte `cbor:"2,keyasint"`
}

// NewPublicKeyBundle wraps a public key for publication.
func NewPublicKeyBundle(pub PublicKey) *PublicKeyBundle {
	return &PublicKeyBundle{Scheme: pub.Scheme(), Key: pub.Bytes()}
}

// Marshal encodes the bundle as CBOR.
func (b *PublicKeyBundle) Marshal() ([]byte, error) {
	return cbor.Marshal(b)
}

// PublicKey parses the contained key.
func (b *PublicKeyBundle) PublicKey() (PublicKey, error) {
	return ParsePublicKey(b.Scheme, b.Key)
}

// ParsePublicKeyBundle decodes a CBOR bundle.
func ParsePublicKeyBundle(data []byte) (*PublicKeyBundle, error) {
	var b PublicKeyBundle
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if b.Scheme == "" || len(b.Key) == 0 {
		return nil, fmt.Errorf("%w: empty bundle", ErrInvalidPublicKey)
	}
	return &b, nil
}

// BundleDigest returns SHA-256 over the encoded bundle bytes.
func BundleDigest(encoded []byte) Digest {
	return sha256.Sum256(encoded)
}

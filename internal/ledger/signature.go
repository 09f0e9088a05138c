package ledger

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// Signed is a secp256k1 (r, s, v) signature with v in {27, 28}.
type Signed struct {
	R [32]byte
	S [32]byte
	V uint8
}

// Signature is either Unsigned or Signed. The zero value is Unsigned.
//
// Unsigned submissions skip signer recovery entirely; the only binding
// between the message and its sender is whoever made the call.
type Signature struct {
	signed *Signed
}

// Unsigned is the explicit "no signature" variant.
var Unsigned = Signature{}

// WithSignature returns the Signed variant.
func WithSignature(sig Signed) Signature {
	return Signature{signed: &sig}
}

// SignatureFromWire maps a wire (r, s, v) triple to a Signature. An all-zero
// triple is Unsigned; anything else is Signed.
func SignatureFromWire(r, s [32]byte, v uint8) Signature {
	if r == ([32]byte{}) && s == ([32]byte{}) && v == 0 {
		return Unsigned
	}
	return WithSignature(Signed{R: r, S: s, V: v})
}

// Signed returns the signature triple if present.
func (s Signature) Signed() (Signed, bool) {
	if s.signed == nil {
		return Signed{}, false
	}
	return *s.signed, true
}

// IsSigned reports whether this is the Signed variant.
func (s Signature) IsSigned() bool {
	return s.signed != nil
}

// Wire returns the (r, s, v) triple; all zeros for Unsigned.
func (s Signature) Wire() (r, sv [32]byte, v uint8) {
	if s.signed == nil {
		return
	}
	return s.signed.R, s.signed.S, s.signed.V
}

var errMalformedSignature = errors.New("malformed signature")

// SignDigest signs a 32-byte digest with a secp256k1 key.
func SignDigest(digest []byte, key *ecdsa.PrivateKey) (Signed, error) {
	raw, err := crypto.Sign(digest, key)
	if err != nil {
		return Signed{}, fmt.Errorf("sign digest: %w", err)
	}
	var sig Signed
	copy(sig.R[:], raw[:32])
	copy(sig.S[:], raw[32:64])
	sig.V = raw[64] + 27
	return sig, nil
}

// RecoverSigner returns the identity that produced sig over digest.
func RecoverSigner(digest []byte, sig Signed) (Identity, error) {
	v := sig.V
	if v >= 27 {
		v -= 27
	}
	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return Identity{}, errMalformedSignature
	}

	raw := make([]byte, crypto.SignatureLength)
	copy(raw[:32], sig.R[:])
	copy(raw[32:64], sig.S[:])
	raw[64] = v

	pub, err := crypto.SigToPub(digest, raw)
	if err != nil {
		return Identity{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

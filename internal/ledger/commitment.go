package ledger

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// DomainTag prefixes every canonical commitment.
	DomainTag = "sealpost/v1"

	messageTag = "MSG:"
	keyTag     = "KEY:"
)

// NoKeyCommitment is the key locator commitment of a message sent without a
// key envelope.
var NoKeyCommitment = LocatorCommitment("")

// LocatorCommitment returns Keccak-256 of a content store locator.
func LocatorCommitment(locator string) Hash {
	return crypto.Keccak256Hash([]byte(locator))
}

// CommitmentFields are the message fields bound by a signature.
type CommitmentFields struct {
	Sender                   Identity
	Recipient                Identity
	Timestamp                uint64
	ContentDigest            Hash
	IV                       IV
	ContentLocatorCommitment Hash
	KeyLocatorCommitment     Hash
	Nonce                    uint64
}

// Canonical returns the length-prefixed, field-ordered encoding. Each field
// is a 4-byte big-endian length followed by its bytes. The nonce is encoded
// as an unsigned 128-bit big-endian integer.
func (f CommitmentFields) Canonical() []byte {
	var timestamp [8]byte
	binary.BigEndian.PutUint64(timestamp[:], f.Timestamp)

	var nonce [16]byte
	binary.BigEndian.PutUint64(nonce[8:], f.Nonce)

	return canonical(
		[]byte(messageTag),
		f.Sender[:],
		f.Recipient[:],
		timestamp[:],
		f.ContentDigest[:],
		f.IV[:],
		f.ContentLocatorCommitment[:],
		f.KeyLocatorCommitment[:],
		nonce[:],
	)
}

// Hash returns Keccak-256 of the canonical encoding.
func (f CommitmentFields) Hash() Hash {
	return crypto.Keccak256Hash(f.Canonical())
}

// SigningDigest wraps the commitment hash in the EIP-191 "signed message"
// envelope.
func (f CommitmentFields) SigningDigest() []byte {
	h := f.Hash()
	return accounts.TextHash(h[:])
}

// KeyCommitmentFields are the key registration fields bound by the owner's
// signature. Timestamp is a ledger clock reading taken by the registrant.
type KeyCommitmentFields struct {
	Owner            Identity
	PublicKeyDigest  Hash
	PublicKeyLocator string
	Timestamp        uint64
}

// Canonical returns the length-prefixed encoding under the "KEY:" tag.
func (f KeyCommitmentFields) Canonical() []byte {
	var timestamp [8]byte
	binary.BigEndian.PutUint64(timestamp[:], f.Timestamp)

	return canonical(
		[]byte(keyTag),
		f.Owner[:],
		f.PublicKeyDigest[:],
		[]byte(f.PublicKeyLocator),
		timestamp[:],
	)
}

// SigningDigest wraps Keccak-256 of the canonical encoding in the EIP-191
// envelope.
func (f KeyCommitmentFields) SigningDigest() []byte {
	h := crypto.Keccak256Hash(f.Canonical())
	return accounts.TextHash(h[:])
}

// canonical prefixes the domain tag and writes each field as a 4-byte
// big-endian length followed by its bytes.
func canonical(fields ...[]byte) []byte {
	fields = append([][]byte{[]byte(DomainTag)}, fields...)

	size := 0
	for _, field := range fields {
		size += 4 + len(field)
	}

	out := make([]byte, 0, size)
	for _, field := range fields {
		out = binary.BigEndian.AppendUint32(out, uint32(len(field)))
		out = append(out, field...)
	}
	return out
}

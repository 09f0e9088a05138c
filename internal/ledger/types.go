package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// IVSize is the size of a content IV in bytes.
const IVSize = 12

// Identity is an account address recovered from secp256k1 signatures.
// The zero value is the null identity.
type Identity = common.Address

// Hash is a 32-byte digest or commitment.
type Hash = common.Hash

// IV is the 96-bit AEAD nonce of a message.
type IV [IVSize]byte

// IsZero reports whether the IV is all zeros.
func (v IV) IsZero() bool {
	return v == IV{}
}

// MarshalText encodes the IV as 0x-prefixed hex.
func (v IV) MarshalText() ([]byte, error) {
	return hexutil.Bytes(v[:]).MarshalText()
}

// UnmarshalText decodes a 0x-prefixed hex IV.
func (v *IV) UnmarshalText(input []byte) error {
	var b hexutil.Bytes
	if err := b.UnmarshalText(input); err != nil {
		return err
	}
	if len(b) != IVSize {
		return fmt.Errorf("iv must be %d bytes, got %d", IVSize, len(b))
	}
	copy(v[:], b)
	return nil
}

func (v IV) String() string {
	return hexutil.Encode(v[:])
}

// Candidate is a proposed message submitted to the ledger.
type Candidate struct {
	Sender                   Identity
	Recipient                Identity
	ContentDigest            Hash
	IV                       IV
	ContentLocatorCommitment Hash
	KeyLocatorCommitment     Hash
	Nonce                    uint64
	Signature                Signature
}

// MessageMeta is the committed record of an accepted message.
type MessageMeta struct {
	ID                       uint64
	Sender                   Identity
	Recipient                Identity
	Timestamp                uint64
	ContentDigest            Hash
	IV                       IV
	ContentLocatorCommitment Hash
	KeyLocatorCommitment     Hash
	Nonce                    uint64
	Signature                Signature
}

// KeyRecord is the latest published public key of an identity.
type KeyRecord struct {
	Owner            Identity
	PublicKeyDigest  Hash
	PublicKeyLocator string
	UpdatedAt        uint64
}

func (c *Candidate) validate() error {
	if c.Recipient == (Identity{}) {
		return reject(KindInvalidInput, "recipient is the null identity")
	}
	if c.ContentDigest == (Hash{}) {
		return reject(KindInvalidInput, "content digest is zero")
	}
	if c.IV.IsZero() {
		return reject(KindInvalidInput, "iv is zero")
	}
	return nil
}

// commitmentFields returns the fields covered by a signature when the
// candidate is accepted at timestamp.
func (c *Candidate) commitmentFields(timestamp uint64) CommitmentFields {
	return CommitmentFields{
		Sender:                   c.Sender,
		Recipient:                c.Recipient,
		Timestamp:                timestamp,
		ContentDigest:            c.ContentDigest,
		IV:                       c.IV,
		ContentLocatorCommitment: c.ContentLocatorCommitment,
		KeyLocatorCommitment:     c.KeyLocatorCommitment,
		Nonce:                    c.Nonce,
	}
}

// SigningDigest is the EIP-191 digest a sender signs for a submission
// accepted at timestamp.
func (c *Candidate) SigningDigest(timestamp uint64) []byte {
	return c.commitmentFields(timestamp).SigningDigest()
}

// Fields returns the commitment fields of an accepted message.
func (m *MessageMeta) Fields() CommitmentFields {
	return CommitmentFields{
		Sender:                   m.Sender,
		Recipient:                m.Recipient,
		Timestamp:                m.Timestamp,
		ContentDigest:            m.ContentDigest,
		IV:                       m.IV,
		ContentLocatorCommitment: m.ContentLocatorCommitment,
		KeyLocatorCommitment:     m.KeyLocatorCommitment,
		Nonce:                    m.Nonce,
	}
}

package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
)

// Store persists committed ledger state. Writes happen under the ledger's
// commit lock, so implementations need not serialize them.
type Store interface {
	// Load replays committed messages in id order, then key records.
	Load(onMessage func(*MessageMeta) error, onKey func(KeyRecord) error) error
	AppendMessage(m *MessageMeta) error
	PutKey(rec KeyRecord) error
	Close() error
}

var (
	messagesBucket = []byte("messages")
	keysBucket     = []byte("keys")
)

// ErrCorruptStore is returned when a persisted record cannot be decoded.
var ErrCorruptStore = errors.New("corrupt ledger store")

// BoltStore is a Store backed by a bbolt database file.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{messagesBucket, keysBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger store: %w", err)
	}
	return &BoltStore{db: db}, nil
}

type messageRecord struct {
	ID                       uint64 `cbor:"1,keyasint"`
	Sender                   []byte `cbor:"2,keyasint"`
	Recipient                []byte `cbor:"3,keyasint"`
	Timestamp                uint64 `cbor:"4,keyasint"`
	ContentDigest            []byte `cbor:"5,keyasint"`
	IV                       []byte `cbor:"6,keyasint"`
	ContentLocatorCommitment []byte `cbor:"7,keyasint"`
	KeyLocatorCommitment     []byte `cbor:"8,keyasint"`
	Nonce                    uint64 `cbor:"9,keyasint"`
	SigR                     []byte `cbor:"10,keyasint,omitempty"`
	SigS                     []byte `cbor:"11,keyasint,omitempty"`
	SigV                     uint8  `cbor:"12,keyasint,omitempty"`
}

type keyRecord struct {
	Owner     []byte `cbor:"1,keyasint"`
	Digest    []byte `cbor:"2,keyasint"`
	Locator   string `cbor:"3,keyasint"`
	UpdatedAt uint64 `cbor:"4,keyasint"`
}

func idKey(id uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], id)
	return k[:]
}

func encodeMessage(m *MessageMeta) ([]byte, error) {
	rec := messageRecord{
		ID:                       m.ID,
		Sender:                   m.Sender.Bytes(),
		Recipient:                m.Recipient.Bytes(),
		Timestamp:                m.Timestamp,
		ContentDigest:            m.ContentDigest.Bytes(),
		IV:                       m.IV[:],
		ContentLocatorCommitment: m.ContentLocatorCommitment.Bytes(),
		KeyLocatorCommitment:     m.KeyLocatorCommitment.Bytes(),
		Nonce:                    m.Nonce,
	}
	if sig, ok := m.Signature.Signed(); ok {
		rec.SigR = sig.R[:]
		rec.SigS = sig.S[:]
		rec.SigV = sig.V
	}
	return cbor.Marshal(rec)
}

func decodeMessage(data []byte) (*MessageMeta, error) {
	var rec messageRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	if len(rec.Sender) != 20 || len(rec.Recipient) != 20 || len(rec.ContentDigest) != 32 ||
		len(rec.IV) != IVSize || len(rec.ContentLocatorCommitment) != 32 || len(rec.KeyLocatorCommitment) != 32 {
		return nil, fmt.Errorf("%w: message %d has malformed fields", ErrCorruptStore, rec.ID)
	}
	m := &MessageMeta{
		ID:                       rec.ID,
		Sender:                   Identity(rec.Sender),
		Recipient:                Identity(rec.Recipient),
		Timestamp:                rec.Timestamp,
		ContentDigest:            Hash(rec.ContentDigest),
		ContentLocatorCommitment: Hash(rec.ContentLocatorCommitment),
		KeyLocatorCommitment:     Hash(rec.KeyLocatorCommitment),
		Nonce:                    rec.Nonce,
	}
	copy(m.IV[:], rec.IV)
	if len(rec.SigR) == 32 && len(rec.SigS) == 32 {
		var r, s [32]byte
		copy(r[:], rec.SigR)
		copy(s[:], rec.SigS)
		m.Signature = SignatureFromWire(r, s, rec.SigV)
	}
	return m, nil
}

// Load implements Store.
func (s *BoltStore) Load(onMessage func(*MessageMeta) error, onKey func(KeyRecord) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		err := tx.Bucket(messagesBucket).ForEach(func(_, v []byte) error {
			m, err := decodeMessage(v)
			if err != nil {
				return err
			}
			return onMessage(m)
		})
		if err != nil {
			return err
		}
		return tx.Bucket(keysBucket).ForEach(func(_, v []byte) error {
			var rec keyRecord
			if err := cbor.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("%w: %v", ErrCorruptStore, err)
			}
			if len(rec.Owner) != 20 || len(rec.Digest) != 32 {
				return fmt.Errorf("%w: malformed key record", ErrCorruptStore)
			}
			return onKey(KeyRecord{
				Owner:            Identity(rec.Owner),
				PublicKeyDigest:  Hash(rec.Digest),
				PublicKeyLocator: rec.Locator,
				UpdatedAt:        rec.UpdatedAt,
			})
		})
	})
}

// AppendMessage implements Store.
func (s *BoltStore) AppendMessage(m *MessageMeta) error {
	data, err := encodeMessage(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(messagesBucket).Put(idKey(m.ID), data)
	})
}

// PutKey implements Store.
func (s *BoltStore) PutKey(rec KeyRecord) error {
	data, err := cbor.Marshal(keyRecord{
		Owner:     rec.Owner.Bytes(),
		Digest:    rec.PublicKeyDigest.Bytes(),
		Locator:   rec.PublicKeyLocator,
		UpdatedAt: rec.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode key record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(keysBucket).Put(rec.Owner.Bytes(), data)
	})
}

// Close implements Store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

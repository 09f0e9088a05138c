package correlation

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
)

var recordsBucket = []byte("correlation")

// BoltStore keeps records in a bbolt database file.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open correlation store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init correlation store: %w", err)
	}
	return &BoltStore{db: db}, nil
}

type boltRecord struct {
	Content string `cbor:"1,keyasint"`
	Key     string `cbor:"2,keyasint,omitempty"`
}

func recordKey(id uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], id)
	return k[:]
}

// Save implements Store.
func (s *BoltStore) Save(_ context.Context, rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	data, err := cbor.Marshal(boltRecord{Content: rec.ContentLocator, Key: rec.KeyLocator})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Put(recordKey(rec.ID), data)
	})
}

// Lookup implements Store.
func (s *BoltStore) Lookup(_ context.Context, id uint64) (Record, bool, error) {
	var (
		rec Record
		ok  bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(recordsBucket).Get(recordKey(id))
		if v == nil {
			return nil
		}
		var br boltRecord
		if err := cbor.Unmarshal(v, &br); err != nil {
			return fmt.Errorf("decode record %d: %w", id, err)
		}
		rec = Record{ID: id, ContentLocator: br.Content, KeyLocator: br.Key}
		ok = true
		return nil
	})
	return rec, ok, err
}

// All implements Store.
func (s *BoltStore) All(_ context.Context) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).ForEach(func(k, v []byte) error {
			var br boltRecord
			if err := cbor.Unmarshal(v, &br); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			out = append(out, Record{
				ID:             binary.BigEndian.Uint64(k),
				ContentLocator: br.Content,
				KeyLocator:     br.Key,
			})
			return nil
		})
	})
	return out, err
}

// Close releases the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

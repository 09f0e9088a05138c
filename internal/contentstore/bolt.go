package contentstore

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var blobsBucket = []byte("blobs")

// BoltStore keeps blobs in a bbolt database file.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(blobsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init blob store: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Put implements Store.
func (s *BoltStore) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	loc := Locator(data)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(blobsBucket)
		if b.Get([]byte(loc)) != nil {
			return nil
		}
		return b.Put([]byte(loc), data)
	})
	if err != nil {
		return "", fmt.Errorf("put blob: %w", err)
	}
	return loc, nil
}

// Get implements Store.
func (s *BoltStore) Get(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := ParseLocator(locator); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(blobsBucket).Get([]byte(locator))
		if v == nil {
			return ErrNotFound
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := Verify(locator, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Close releases the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

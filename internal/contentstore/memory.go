package contentstore

import (
	"context"
	"sync"
)

// MemoryStore keeps blobs in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	loc := Locator(data)
	s.mu.Lock()
	if _, ok := s.blobs[loc]; !ok {
		s.blobs[loc] = append([]byte(nil), data...)
	}
	s.mu.Unlock()
	return loc, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := ParseLocator(locator); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.blobs[locator]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Delete removes a blob. Used to simulate an unavailable store.
func (s *MemoryStore) Delete(locator string) {
	s.mu.Lock()
	delete(s.blobs, locator)
	s.mu.Unlock()
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

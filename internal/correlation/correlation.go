// Package correlation keeps the local side channel that maps ledger message
// ids to the real content and key locators. The ledger only stores
// commitments to these locators; senders hand records to recipients out of
// band.
package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// ExportVersion is the current export format version.
const ExportVersion = 1

// ErrInvalidImportData is returned when imported records are invalid.
var ErrInvalidImportData = errors.New("invalid import data")

// Record maps a ledger message id to its locators. KeyLocator is empty for
// messages sent without a key envelope.
type Record struct {
	ID             uint64 `json:"id"`
	ContentLocator string `json:"contentLocator"`
	KeyLocator     string `json:"keyLocator,omitempty"`
}

// Store persists correlation records. Implementations are safe for
// concurrent use.
type Store interface {
	Save(ctx context.Context, rec Record) error
	// Lookup returns the record for id; ok is false if none is known.
	Lookup(ctx context.Context, id uint64) (rec Record, ok bool, err error)
	// All returns every record ordered by id.
	All(ctx context.Context) ([]Record, error)
}

// MemoryStore keeps records in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uint64]Record
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uint64]Record)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.records[rec.ID] = rec
	s.mu.Unlock()
	return nil
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(_ context.Context, id uint64) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok, nil
}

// All implements Store.
func (s *MemoryStore) All(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r Record) validate() error {
	if r.ID == 0 {
		return fmt.Errorf("%w: id is required", ErrInvalidImportData)
	}
	if r.ContentLocator == "" {
		return fmt.Errorf("%w: contentLocator is required for message %d", ErrInvalidImportData, r.ID)
	}
	return nil
}

// Exported is the JSON document handed to a recipient.
type Exported struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exportedAt"`
	Records    []Record  `json:"records"`
}

// Validate checks the version and every record.
func (e *Exported) Validate() error {
	if e.Version != ExportVersion {
		return fmt.Errorf("%w: unsupported version %d, expected %d", ErrInvalidImportData, e.Version, ExportVersion)
	}
	for _, rec := range e.Records {
		if err := rec.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Export writes records as indented JSON. A nil filter exports everything.
func Export(ctx context.Context, s Store, w io.Writer, filter func(Record) bool) (int, error) {
	all, err := s.All(ctx)
	if err != nil {
		return 0, err
	}
	doc := Exported{Version: ExportVersion, ExportedAt: time.Now().UTC(), Records: []Record{}}
	for _, rec := range all {
		if filter == nil || filter(rec) {
			doc.Records = append(doc.Records, rec)
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&doc); err != nil {
		return 0, fmt.Errorf("encode records: %w", err)
	}
	return len(doc.Records), nil
}

// Import reads an exported document and saves every record. Nothing is
// saved if the document is invalid.
func Import(ctx context.Context, s Store, r io.Reader) (int, error) {
	var doc Exported
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidImportData, err)
	}
	if err := doc.Validate(); err != nil {
		return 0, err
	}
	for _, rec := range doc.Records {
		if err := s.Save(ctx, rec); err != nil {
			return 0, err
		}
	}
	return len(doc.Records), nil
}

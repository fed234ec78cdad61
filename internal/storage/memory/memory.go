// Package memory implements storage.Backend in process memory; intended for
// tests and sessions that opt out of durable caching.
package memory

import (
	"context"
	"sync"

	"pkt.systems/glyphd/internal/storage"
)

// Store holds font records in a map guarded by a read/write mutex.
type Store struct {
	mu      sync.RWMutex
	records map[string]*storage.FontRecord
	closed  bool
}

// New returns a ready to use in-memory store.
func New() *Store {
	return &Store{records: make(map[string]*storage.FontRecord)}
}

// LoadFont returns a deep copy of the record stored for key.
func (s *Store) LoadFont(_ context.Context, key string) (*storage.FontRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec.Clone(), nil
}

// StoreFont overwrites the record for key. The input is cloned so later
// caller mutations cannot reach the stored copy.
func (s *Store) StoreFont(_ context.Context, key string, rec *storage.FontRecord) error {
	clone := rec.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = clone
	return nil
}

// DeleteFont removes the record for key. Missing records are not an error.
func (s *Store) DeleteFont(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// Keys returns the stored font keys; used by inspection tooling.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	return keys
}

// Close satisfies storage.Backend but requires no action for the in-memory store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = make(map[string]*storage.FontRecord)
	return nil
}

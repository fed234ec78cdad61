package storage

import "context"

// Backend defines the persistent store contract expected by the manager.
// The meta table and the font bytes for one key are a transactional unit:
// loads return both or ErrNotFound, stores land both or fail without effect.
type Backend interface {
	// LoadFont returns a deep copy of the record stored for key.
	LoadFont(ctx context.Context, key string) (*FontRecord, error)
	// StoreFont overwrites the record for key atomically.
	StoreFont(ctx context.Context, key string, rec *FontRecord) error
	// DeleteFont removes the record entirely. Missing records are not an error.
	DeleteFont(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}

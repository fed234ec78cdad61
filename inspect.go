package glyphd

import (
	"context"
	"errors"
	"fmt"

	"pkt.systems/glyphd/internal/loggingutil"
	"pkt.systems/glyphd/internal/storage"
	"pkt.systems/pslog"
)

// ErrNotCached indicates no persisted record exists for the font.
var ErrNotCached = errors.New("glyphd: font not cached")

// StoreInfo describes one persisted font record.
type StoreInfo struct {
	Fingerprint   string
	OutlineOnly   bool
	Loadable      int
	Embedded      []rune
	FontBytes     int
	UpdatedAtUnix int64
}

// InspectStore reads the persisted record for font without constructing a
// manager; intended for tooling.
func InspectStore(ctx context.Context, dsn string, font FontIdentity, logger pslog.Logger) (*StoreInfo, error) {
	backend, err := openBackend(dsn, loggingutil.EnsureLogger(logger))
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	rec, err := backend.LoadFont(ctx, font.Key())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotCached, font)
		}
		return nil, err
	}
	info := &StoreInfo{
		Fingerprint:   rec.Meta.Fingerprint,
		OutlineOnly:   rec.Meta.OutlineOnly,
		Loadable:      len(rec.Meta.Glyphs),
		Embedded:      make([]rune, 0, len(rec.Meta.Chars)),
		FontBytes:     len(rec.Bytes),
		UpdatedAtUnix: rec.Meta.UpdatedAtUnix,
	}
	for _, code := range rec.Meta.Chars {
		info.Embedded = append(info.Embedded, rune(code))
	}
	return info, nil
}

// PurgeStore deletes the persisted record for font; intended for tooling.
func PurgeStore(ctx context.Context, dsn string, font FontIdentity, logger pslog.Logger) error {
	backend, err := openBackend(dsn, loggingutil.EnsureLogger(logger))
	if err != nil {
		return err
	}
	defer backend.Close()
	return backend.DeleteFont(ctx, font.Key())
}

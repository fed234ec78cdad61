package glyphd

import (
	"context"

	"pkt.systems/glyphd/internal/core"
	"pkt.systems/glyphd/internal/loggingutil"
	"pkt.systems/glyphd/internal/storage"
)

// Re-exported domain types. The implementation lives in internal/core; these
// aliases are the public names.
type (
	// FontIdentity names one font instance by (family, weight).
	FontIdentity = core.FontIdentity
	// FileInfo is the parsed metadata of a font base generation.
	FileInfo = core.FileInfo
	// LoadResult summarises one completed glyph-load cycle.
	LoadResult = core.LoadResult
	// GlyphSource is the network interface to a glyph service.
	GlyphSource = core.GlyphSource
	// FontEditor is the binary transform collaborator.
	FontEditor = core.FontEditor
	// MergedBase is one font's slice of a pre-fetched family bundle.
	MergedBase = core.MergedBase
	// MergedSource supplies pre-fetched family bundles.
	MergedSource = core.MergedSource
	// Fault is one classified error report.
	Fault = core.Fault
	// Reporter receives fault reports.
	Reporter = core.Reporter
	// ReporterFunc adapts a function to the Reporter interface.
	ReporterFunc = core.ReporterFunc
)

// Sentinel errors surfaced by Manager operations.
var (
	// ErrClosed is returned when operations are submitted to a closed Manager.
	ErrClosed = core.ErrClosed
	// ErrNoBase is returned by FontBytes before base acquisition completes.
	ErrNoBase = core.ErrNoBase
)

// Manager owns the incremental glyph cache for one font instance. Create one
// per (family, weight) and keep it for the session; cycles for different
// managers proceed fully in parallel.
type Manager struct {
	svc     *core.Service
	backend storage.Backend
}

// NewManager opens the configured store and starts the per-font serializer.
func NewManager(font FontIdentity, cfg Config) (*Manager, error) {
	if err := cfg.validate(font); err != nil {
		return nil, err
	}
	logger := loggingutil.EnsureLogger(cfg.Logger)

	var backend storage.Backend
	if !cfg.DisablePersistence {
		var err error
		backend, err = openBackend(cfg.Store, logger)
		if err != nil {
			return nil, err
		}
	}

	svc := core.New(core.Config{
		Font:                font,
		Store:               backend,
		Source:              cfg.Source,
		Editor:              cfg.Editor,
		Merged:              cfg.Merged,
		Reporter:            cfg.Reporter,
		Logger:              logger,
		Clock:               cfg.Clock,
		Rand:                cfg.rand(),
		RequestChunkSize:    cfg.RequestChunkSize,
		ObfuscationDisabled: cfg.DisableObfuscation,
		PersistenceDisabled: cfg.DisablePersistence,
		DropExistingCache:   cfg.DropExistingCache,
	})
	return &Manager{svc: svc, backend: backend}, nil
}

// LoadGlyphs requests glyph data for every character in text and blocks
// until the cycle reaches a terminal state. Cycle faults degrade to an empty
// result; the error is non-nil only when the serializer hand-off failed or
// ctx ended before the cycle started.
func (m *Manager) LoadGlyphs(ctx context.Context, text string) (LoadResult, error) {
	return m.svc.LoadGlyphs(ctx, text)
}

// Prepare runs base acquisition without requesting glyphs.
func (m *Manager) Prepare(ctx context.Context) error {
	return m.svc.Prepare(ctx)
}

// Font returns the identity this manager owns.
func (m *Manager) Font() FontIdentity {
	return m.svc.Font()
}

// CachedCharacters returns the embedded codepoints, ascending.
func (m *Manager) CachedCharacters() []rune {
	return m.svc.CachedCharacters()
}

// FontBytes returns a copy of the current font artifact, or ErrNoBase before
// acquisition completes.
func (m *Manager) FontBytes() ([]byte, error) {
	return m.svc.FontBytes()
}

// FileInfo returns the current base generation's metadata, or nil before
// acquisition.
func (m *Manager) FileInfo() *FileInfo {
	return m.svc.FileInfo()
}

// Close drains the serializer and releases the store.
func (m *Manager) Close() error {
	err := m.svc.Close()
	if m.backend != nil {
		if cerr := m.backend.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

package core

import (
	"context"

	"pkt.systems/glyphd/api"
)

// GlyphSource is the network interface to a glyph service.
type GlyphSource interface {
	// FetchBase downloads the raw compact base for font.
	FetchBase(ctx context.Context, font FontIdentity) ([]byte, error)
	// FetchGlyphs downloads a bundle covering codepoints for font.
	FetchGlyphs(ctx context.Context, font FontIdentity, codepoints []rune) (*api.GlyphBundle, error)
}

// FontEditor is the binary transform collaborator. Its implementations own
// the byte-level artifact layout; the manager only sequences calls to it.
type FontEditor interface {
	// DecodeBase parses a fetched raw base into file metadata and
	// ready-to-use font bytes.
	DecodeBase(raw []byte) (*FileInfo, []byte, error)
	// Inject embeds the bundle's glyph data for codepoints into font and
	// returns the updated artifact.
	Inject(info *FileInfo, codepoints []rune, bundle *api.GlyphBundle, font []byte) ([]byte, error)
	// Clear drops any editor-side state for font, used on invalidation.
	Clear(font FontIdentity) error
}

// MergedBase is one font's slice of a pre-fetched family bundle.
type MergedBase struct {
	Info *FileInfo
	// Bytes is the ready-to-use font artifact.
	Bytes []byte
	// Chars lists the codepoints already embedded in Bytes.
	Chars []rune
}

// MergedSource supplies a pre-fetched base bundle shared across the fonts of
// one family, consulted between the persistent store and the network.
type MergedSource interface {
	// BaseFor returns the pre-decoded base for font when the merged bundle
	// contains it.
	BaseFor(font FontIdentity) (*MergedBase, bool)
}

// Fault is one classified error report delivered to the telemetry sink.
type Fault struct {
	Code   string
	Font   FontIdentity
	Detail string
	Err    error
}

// Reporter receives fault reports. Faults are never surfaced to glyph-load
// callers; the reporter is the only place they become visible.
type Reporter interface {
	ReportFault(ctx context.Context, fault Fault)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(ctx context.Context, fault Fault)

// ReportFault implements Reporter.
func (f ReporterFunc) ReportFault(ctx context.Context, fault Fault) {
	f(ctx, fault)
}

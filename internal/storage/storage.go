package storage

import "errors"

// Sentinel errors shared by all backends.
var (
	// ErrNotFound indicates no record exists for the requested font.
	ErrNotFound = errors.New("storage: not found")
	// ErrCorrupt indicates a record exists but failed structural validation,
	// typically a partial write left behind by a crash.
	ErrCorrupt = errors.New("storage: corrupt record")
)

// GlyphLoc maps one codepoint to its glyph location inside the font artifact.
type GlyphLoc struct {
	Code int32  `json:"c"`
	Loc  uint32 `json:"l"`
}

// FontMeta is the persisted metadata table for a font. Together with the font
// bytes it forms the transactional unit backends must read and write whole.
type FontMeta struct {
	// Fingerprint is the content hash of the authoritative font bytes for
	// this base generation.
	Fingerprint string `json:"fingerprint"`
	// OutlineOnly marks bases that carry outlines without hinting data.
	OutlineOnly bool `json:"outline_only,omitempty"`
	// Glyphs enumerates every codepoint the font format supports and where
	// its glyph lands in the artifact.
	Glyphs []GlyphLoc `json:"glyphs"`
	// Chars lists the codepoints whose glyph data is embedded in the stored
	// font bytes, ascending. Must never diverge from the actual embedded set.
	Chars []int32 `json:"chars"`
	// UpdatedAtUnix records the last successful mutation.
	UpdatedAtUnix int64 `json:"updated_at_unix,omitempty"`
}

// FontRecord pairs the metadata table with the font bytes.
type FontRecord struct {
	Meta  *FontMeta
	Bytes []byte
}

// Clone returns a deep copy so callers can mutate without aliasing the store.
func (r *FontRecord) Clone() *FontRecord {
	if r == nil {
		return nil
	}
	clone := &FontRecord{}
	if r.Meta != nil {
		meta := *r.Meta
		if len(r.Meta.Glyphs) > 0 {
			meta.Glyphs = append([]GlyphLoc(nil), r.Meta.Glyphs...)
		}
		if len(r.Meta.Chars) > 0 {
			meta.Chars = append([]int32(nil), r.Meta.Chars...)
		}
		clone.Meta = &meta
	}
	if len(r.Bytes) > 0 {
		clone.Bytes = append([]byte(nil), r.Bytes...)
	}
	return clone
}

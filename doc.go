// Package glyphd incrementally delivers only the glyphs a page actually
// uses. A Manager owns the binary state of one font instance: it acquires a
// compact base from the persistent store, a merged family bundle, or the
// network; diffs requested characters against the embedded set; pads small
// requests with decoy codepoints; fetches missing glyph data in size-bounded
// chunks; verifies each bundle against the base generation's fingerprint;
// and injects the result, keeping the persisted cache in step. All mutating
// cycles for one font run in strict submission order.
package glyphd

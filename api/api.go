// Package api defines the wire types exchanged with a glyph service.
package api

// Service paths understood by glyph servers.
const (
	// PathBase serves the compact base font for a family/weight.
	PathBase = "/v1/base"
	// PathGlyphs serves glyph bundles for requested codepoints.
	PathGlyphs = "/v1/glyphs"
)

// GlyphRequest asks the service for glyph data covering Codepoints.
type GlyphRequest struct {
	Family     string   `json:"family"`
	Weight     int      `json:"weight"`
	Codepoints []uint32 `json:"codepoints"`
}

// GlyphBundle is the service response for a glyph request. Payload encodes
// GlyphCount glyph records; Fingerprint names the font generation the bundle
// applies to and must match the requesting client's base fingerprint.
type GlyphBundle struct {
	GlyphCount  int    `json:"glyph_count"`
	Payload     []byte `json:"payload,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

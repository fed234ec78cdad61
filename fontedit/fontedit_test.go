package fontedit

import (
	"bytes"
	"testing"

	"pkt.systems/glyphd/api"
	"pkt.systems/glyphd/internal/core"
)

func testInfo() *core.FileInfo {
	return &core.FileInfo{
		CodepointMap: map[rune]uint32{'a': 10, 'b': 20, 'c': 30},
		OutlineOnly:  true,
		Fingerprint:  "fp-test",
	}
}

func TestBaseRoundTrip(t *testing.T) {
	t.Parallel()
	ed := New()
	info := testInfo()
	raw := EncodeBase(info, EmptyArtifact())

	decoded, font, err := ed.DecodeBase(raw)
	if err != nil {
		t.Fatalf("DecodeBase: %v", err)
	}
	if decoded.Fingerprint != info.Fingerprint {
		t.Fatalf("fingerprint = %q, want %q", decoded.Fingerprint, info.Fingerprint)
	}
	if !decoded.OutlineOnly {
		t.Fatalf("outline flag lost")
	}
	if len(decoded.CodepointMap) != 3 {
		t.Fatalf("codepoint map has %d entries, want 3", len(decoded.CodepointMap))
	}
	for code, loc := range info.CodepointMap {
		if decoded.CodepointMap[code] != loc {
			t.Fatalf("codepoint %q maps to %d, want %d", code, decoded.CodepointMap[code], loc)
		}
	}
	codes, err := EmbeddedCodes(font)
	if err != nil {
		t.Fatalf("EmbeddedCodes: %v", err)
	}
	if len(codes) != 0 {
		t.Fatalf("fresh base embeds %d glyphs, want 0", len(codes))
	}
}

func TestDecodeBaseRejectsBadMagic(t *testing.T) {
	t.Parallel()
	if _, _, err := New().DecodeBase([]byte("XXXX....")); err == nil {
		t.Fatalf("expected error for bad magic")
	}
}

func TestDecodeBaseRejectsTruncation(t *testing.T) {
	t.Parallel()
	raw := EncodeBase(testInfo(), EmptyArtifact())
	for _, cut := range []int{5, 9, len(raw) - 3} {
		if _, _, err := New().DecodeBase(raw[:cut]); err == nil {
			t.Fatalf("expected error for truncation at %d bytes", cut)
		}
	}
}

func TestInjectEmbedsGlyphs(t *testing.T) {
	t.Parallel()
	ed := New()
	info := testInfo()
	font := EmptyArtifact()

	payload, count := EncodeGlyphPayload(map[rune][]byte{
		'a': []byte("glyph-a"),
		'b': []byte("glyph-b"),
	})
	bundle := &api.GlyphBundle{GlyphCount: count, Payload: payload, Fingerprint: info.Fingerprint}

	updated, err := ed.Inject(info, []rune{'a', 'b'}, bundle, font)
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	codes, err := EmbeddedCodes(updated)
	if err != nil {
		t.Fatalf("EmbeddedCodes: %v", err)
	}
	if len(codes) != 2 || codes[0] != 'a' || codes[1] != 'b' {
		t.Fatalf("embedded codes = %q, want ab", string(codes))
	}

	// Re-injecting the same glyph replaces the record instead of duplicating.
	again, err := ed.Inject(info, []rune{'a'}, bundleFor(t, info, map[rune][]byte{'a': []byte("glyph-a2")}), updated)
	if err != nil {
		t.Fatalf("re-Inject: %v", err)
	}
	codes, err = EmbeddedCodes(again)
	if err != nil {
		t.Fatalf("EmbeddedCodes: %v", err)
	}
	if len(codes) != 2 {
		t.Fatalf("re-injection duplicated records: %q", string(codes))
	}
}

func TestInjectRejectsUnsupportedCodepoint(t *testing.T) {
	t.Parallel()
	info := testInfo()
	bundle := bundleFor(t, info, map[rune][]byte{'z': []byte("glyph-z")})
	if _, err := New().Inject(info, []rune{'z'}, bundle, EmptyArtifact()); err == nil {
		t.Fatalf("expected error for codepoint outside the map")
	}
}

func TestInjectRejectsCountMismatch(t *testing.T) {
	t.Parallel()
	info := testInfo()
	payload, _ := EncodeGlyphPayload(map[rune][]byte{'a': []byte("glyph-a")})
	bundle := &api.GlyphBundle{GlyphCount: 2, Payload: payload, Fingerprint: info.Fingerprint}
	if _, err := New().Inject(info, []rune{'a'}, bundle, EmptyArtifact()); err == nil {
		t.Fatalf("expected error for glyph count mismatch")
	}
}

func TestInjectEmptyBundleKeepsArtifact(t *testing.T) {
	t.Parallel()
	info := testInfo()
	bundle := &api.GlyphBundle{GlyphCount: 0, Fingerprint: info.Fingerprint}
	updated, err := New().Inject(info, []rune{'a'}, bundle, EmptyArtifact())
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if !bytes.Equal(updated, EmptyArtifact()) {
		t.Fatalf("empty bundle changed the artifact")
	}
}

func TestFingerprintStable(t *testing.T) {
	t.Parallel()
	a := Fingerprint([]byte("font-data"))
	b := Fingerprint([]byte("font-data"))
	if a != b {
		t.Fatalf("fingerprint not deterministic: %q vs %q", a, b)
	}
	if a == Fingerprint([]byte("other-data")) {
		t.Fatalf("distinct inputs share a fingerprint")
	}
	if len(a) != 64 {
		t.Fatalf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func bundleFor(t *testing.T, info *core.FileInfo, glyphs map[rune][]byte) *api.GlyphBundle {
	t.Helper()
	payload, count := EncodeGlyphPayload(glyphs)
	return &api.GlyphBundle{GlyphCount: count, Payload: payload, Fingerprint: info.Fingerprint}
}

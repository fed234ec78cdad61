// Package fontedit implements the binary transform collaborator over the
// glyphd container format: a compact envelope holding a codepoint map, a
// generation fingerprint, and per-glyph data records. The container is this
// project's transport format, not an SFNT layout; services that ship real
// SFNT/CFF data plug in their own transform.
package fontedit

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"

	"pkt.systems/glyphd/api"
	"pkt.systems/glyphd/internal/core"
)

const (
	baseMagic     = "GdB1"
	artifactMagic = "GdF1"

	flagOutlineOnly = 1 << 0

	maxFingerprintLen = 1 << 10
	maxGlyphDataLen   = 16 << 20
)

// Editor implements core.FontEditor. It is stateless and safe for use by
// multiple managers.
type Editor struct{}

// New returns a ready Editor.
func New() *Editor {
	return &Editor{}
}

// DecodeBase parses a raw base envelope into file metadata and the initial
// font artifact.
func (*Editor) DecodeBase(raw []byte) (*core.FileInfo, []byte, error) {
	r := &reader{buf: raw}
	if magic := r.bytes(4); string(magic) != baseMagic {
		return nil, nil, fmt.Errorf("fontedit: bad base magic %q", magic)
	}
	flags := r.u8()
	fpLen := r.u16()
	if fpLen == 0 || fpLen > maxFingerprintLen {
		return nil, nil, fmt.Errorf("fontedit: fingerprint length %d out of range", fpLen)
	}
	fingerprint := string(r.bytes(int(fpLen)))
	count := r.u32()
	if r.err != nil {
		return nil, nil, fmt.Errorf("fontedit: truncated base header: %w", r.err)
	}
	info := &core.FileInfo{
		CodepointMap: make(map[rune]uint32, count),
		OutlineOnly:  flags&flagOutlineOnly != 0,
		Fingerprint:  fingerprint,
	}
	for i := uint32(0); i < count; i++ {
		code := r.u32()
		loc := r.u32()
		if r.err != nil {
			return nil, nil, fmt.Errorf("fontedit: truncated codepoint map: %w", r.err)
		}
		info.CodepointMap[rune(code)] = loc
	}
	fontLen := r.u32()
	font := r.bytes(int(fontLen))
	if r.err != nil {
		return nil, nil, fmt.Errorf("fontedit: truncated font artifact: %w", r.err)
	}
	if err := validateArtifact(font); err != nil {
		return nil, nil, err
	}
	return info, append([]byte(nil), font...), nil
}

// Inject appends the bundle's glyph records to the font artifact. Records
// already present are replaced so re-injection stays idempotent.
func (*Editor) Inject(info *core.FileInfo, codepoints []rune, bundle *api.GlyphBundle, font []byte) ([]byte, error) {
	if info == nil {
		return nil, fmt.Errorf("fontedit: file info required")
	}
	existing, err := parseArtifact(font)
	if err != nil {
		return nil, err
	}
	records, err := parseGlyphRecords(bundle.Payload, bundle.GlyphCount)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if _, ok := info.CodepointMap[rec.code]; !ok {
			return nil, fmt.Errorf("fontedit: bundle carries unsupported codepoint U+%04X", rec.code)
		}
		existing[rec.code] = rec.data
	}
	return encodeArtifact(existing), nil
}

// Clear satisfies core.FontEditor; the editor holds no per-font state.
func (*Editor) Clear(core.FontIdentity) error {
	return nil
}

// glyphRecord pairs one codepoint with its raw glyph data.
type glyphRecord struct {
	code rune
	data []byte
}

// EncodeBase builds a base envelope; used by glyph services and tests.
func EncodeBase(info *core.FileInfo, font []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(baseMagic)
	var flags byte
	if info.OutlineOnly {
		flags |= flagOutlineOnly
	}
	buf.WriteByte(flags)
	writeU16(&buf, uint16(len(info.Fingerprint)))
	buf.WriteString(info.Fingerprint)
	writeU32(&buf, uint32(len(info.CodepointMap)))
	for _, code := range sortedCodes(info.CodepointMap) {
		writeU32(&buf, uint32(code))
		writeU32(&buf, info.CodepointMap[code])
	}
	writeU32(&buf, uint32(len(font)))
	buf.Write(font)
	return buf.Bytes()
}

// EmptyArtifact returns a font artifact with no glyph records.
func EmptyArtifact() []byte {
	var buf bytes.Buffer
	buf.WriteString(artifactMagic)
	writeU32(&buf, 0)
	return buf.Bytes()
}

// EncodeGlyphPayload builds a bundle payload from glyph records; used by
// glyph services and tests.
func EncodeGlyphPayload(glyphs map[rune][]byte) ([]byte, int) {
	var buf bytes.Buffer
	codes := make([]rune, 0, len(glyphs))
	for code := range glyphs {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	writeU32(&buf, uint32(len(codes)))
	for _, code := range codes {
		writeU32(&buf, uint32(code))
		writeU32(&buf, uint32(len(glyphs[code])))
		buf.Write(glyphs[code])
	}
	return buf.Bytes(), len(codes)
}

// EmbeddedCodes lists the codepoints whose glyph records are present in the
// artifact, ascending.
func EmbeddedCodes(font []byte) ([]rune, error) {
	records, err := parseArtifact(font)
	if err != nil {
		return nil, err
	}
	codes := make([]rune, 0, len(records))
	for code := range records {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes, nil
}

// Fingerprint computes the hex content hash used to name base generations.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func validateArtifact(font []byte) error {
	_, err := parseArtifact(font)
	return err
}

func parseArtifact(font []byte) (map[rune][]byte, error) {
	r := &reader{buf: font}
	if magic := r.bytes(4); string(magic) != artifactMagic {
		return nil, fmt.Errorf("fontedit: bad artifact magic %q", magic)
	}
	count := r.u32()
	if r.err != nil {
		return nil, fmt.Errorf("fontedit: truncated artifact header: %w", r.err)
	}
	records := make(map[rune][]byte, count)
	for i := uint32(0); i < count; i++ {
		code := r.u32()
		length := r.u32()
		if r.err == nil && length > maxGlyphDataLen {
			return nil, fmt.Errorf("fontedit: glyph record length %d out of range", length)
		}
		data := r.bytes(int(length))
		if r.err != nil {
			return nil, fmt.Errorf("fontedit: truncated glyph record %d: %w", i, r.err)
		}
		records[rune(code)] = append([]byte(nil), data...)
	}
	return records, nil
}

func parseGlyphRecords(payload []byte, declared int) ([]glyphRecord, error) {
	if len(payload) == 0 {
		if declared != 0 {
			return nil, fmt.Errorf("fontedit: bundle declares %d glyphs with empty payload", declared)
		}
		return nil, nil
	}
	r := &reader{buf: payload}
	count := r.u32()
	if r.err != nil {
		return nil, fmt.Errorf("fontedit: truncated payload header: %w", r.err)
	}
	if int(count) != declared {
		return nil, fmt.Errorf("fontedit: payload carries %d glyphs, bundle declares %d", count, declared)
	}
	records := make([]glyphRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		code := r.u32()
		length := r.u32()
		if r.err == nil && length > maxGlyphDataLen {
			return nil, fmt.Errorf("fontedit: glyph data length %d out of range", length)
		}
		data := r.bytes(int(length))
		if r.err != nil {
			return nil, fmt.Errorf("fontedit: truncated glyph data %d: %w", i, r.err)
		}
		records = append(records, glyphRecord{
			code: rune(code),
			data: append([]byte(nil), data...),
		})
	}
	return records, nil
}

func encodeArtifact(records map[rune][]byte) []byte {
	codes := make([]rune, 0, len(records))
	for code := range records {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	var buf bytes.Buffer
	buf.WriteString(artifactMagic)
	writeU32(&buf, uint32(len(codes)))
	for _, code := range codes {
		writeU32(&buf, uint32(code))
		writeU32(&buf, uint32(len(records[code])))
		buf.Write(records[code])
	}
	return buf.Bytes()
}

type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = fmt.Errorf("need %d bytes at offset %d, have %d", n, r.off, len(r.buf)-r.off)
		return nil
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) u8() byte {
	b := r.bytes(1)
	if r.err != nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.bytes(2)
	if r.err != nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.bytes(4)
	if r.err != nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	buf.Write(tmp[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func sortedCodes(cmap map[rune]uint32) []rune {
	codes := make([]rune, 0, len(cmap))
	for code := range cmap {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

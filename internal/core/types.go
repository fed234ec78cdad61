package core

import (
	"fmt"
	"slices"
	"strconv"
)

// FontIdentity names one font instance: the (family, weight) pair is the
// stable key for its manager and its persisted store namespace.
type FontIdentity struct {
	Family string
	Weight int
}

// Key returns the store namespace key for this font.
func (f FontIdentity) Key() string {
	return f.Family + "/" + strconv.Itoa(f.Weight)
}

func (f FontIdentity) String() string {
	return fmt.Sprintf("%s:%d", f.Family, f.Weight)
}

// FileInfo carries the parsed metadata of a font base. Produced once per base
// acquisition and immutable for that generation.
type FileInfo struct {
	// CodepointMap maps each supported codepoint to its glyph location.
	CodepointMap map[rune]uint32
	// OutlineOnly marks bases carrying outlines without hinting data.
	OutlineOnly bool
	// Fingerprint is the content hash of the authoritative font bytes.
	Fingerprint string
}

// CodepointSet is a read-only ascending set of codepoints, built once from
// FileInfo at base-acquisition time.
type CodepointSet struct {
	codes []rune
}

// NewCodepointSet builds a set from codes, deduplicating and sorting.
func NewCodepointSet(codes []rune) CodepointSet {
	sorted := append([]rune(nil), codes...)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return CodepointSet{codes: sorted}
}

// Contains reports membership by binary search.
func (s CodepointSet) Contains(r rune) bool {
	_, ok := slices.BinarySearch(s.codes, r)
	return ok
}

// Len returns the number of codepoints in the set.
func (s CodepointSet) Len() int {
	return len(s.codes)
}

// LoadResult summarises one completed glyph-load cycle.
type LoadResult struct {
	// Requested counts the codepoints the caller asked for.
	Requested int
	// Needed counts codepoints that were loadable and not yet embedded,
	// before obfuscation padding.
	Needed int
	// Injected counts glyphs delivered and embedded this cycle.
	Injected int
	// Remaining counts codepoints deferred to a follow-up cycle because the
	// request exceeded the chunk size.
	Remaining int
	// NeedsRefresh is set when at least one glyph was injected, signalling
	// the caller to swap in the updated font artifact.
	NeedsRefresh bool
}

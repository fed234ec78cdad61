package core

import "sync"

// pendingSet tracks codepoints with consumers awaiting them. Callers may add
// entries at any time, including mid-cycle; only the owning cycle removes
// satisfied entries. Entries accumulate reference counts so overlapping
// requests keep a codepoint pending until every consumer is served.
type pendingSet struct {
	mu   sync.Mutex
	refs map[rune]int
}

func newPendingSet() *pendingSet {
	return &pendingSet{refs: make(map[rune]int)}
}

// add bumps the reference count for every codepoint in codes.
func (p *pendingSet) add(codes []rune) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, code := range codes {
		p.refs[code]++
	}
}

// drain removes the satisfied codepoints regardless of reference count; their
// consumers are all served once the glyph is embedded.
func (p *pendingSet) drain(satisfied []rune) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, code := range satisfied {
		delete(p.refs, code)
	}
}

// snapshot copies the distinct pending codepoints into dst.
func (p *pendingSet) snapshot(dst map[rune]bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for code := range p.refs {
		dst[code] = true
	}
}

// size reports the number of distinct pending codepoints.
func (p *pendingSet) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.refs)
}

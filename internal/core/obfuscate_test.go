package core

import (
	"math/rand"
	"testing"
)

func loadableRange(lo, hi rune) CodepointSet {
	codes := make([]rune, 0, hi-lo+1)
	for code := lo; code <= hi; code++ {
		codes = append(codes, code)
	}
	return NewCodepointSet(codes)
}

func TestObfuscatePadsSmallRequests(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(42))
	loadable := loadableRange(0x20, 0x2ff)
	codes := []rune{'a', 'b'}

	out := obfuscate(codes, nil, loadable, rng)
	if len(out) != obfuscationMinLen {
		t.Fatalf("padded length = %d, want %d", len(out), obfuscationMinLen)
	}
	if out[0] != 'a' || out[1] != 'b' {
		t.Fatalf("real codepoints must stay first: %q", string(out[:2]))
	}

	seen := make(map[rune]bool)
	lo := rune('a') - obfuscationRange/2
	hi := rune('b') + obfuscationRange/2
	for _, code := range out {
		if seen[code] {
			t.Fatalf("duplicate codepoint %q in padded request", code)
		}
		seen[code] = true
		if !loadable.Contains(code) {
			t.Fatalf("decoy %q not loadable", code)
		}
		if code < lo || code >= hi {
			t.Fatalf("decoy %q outside window [%q, %q)", code, lo, hi)
		}
	}
}

func TestObfuscateSkipsLargeRequests(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(1))
	loadable := loadableRange(0x20, 0x2ff)
	codes := make([]rune, 0, obfuscationMinLen)
	for code := rune('a'); len(codes) < obfuscationMinLen; code++ {
		codes = append(codes, code)
	}
	out := obfuscate(codes, nil, loadable, rng)
	if len(out) != len(codes) {
		t.Fatalf("request of %d codepoints must not be padded, got %d", len(codes), len(out))
	}
}

func TestObfuscateAvoidsExcludedCodepoints(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	loadable := loadableRange(0x20, 0x2ff)
	excluded := map[rune]bool{'c': true, 'd': true, 'e': true}

	out := obfuscate([]rune{'a'}, excluded, loadable, rng)
	for _, code := range out[1:] {
		if excluded[code] {
			t.Fatalf("decoy %q collides with an excluded codepoint", code)
		}
	}
}

func TestObfuscateTerminatesWithFewCandidates(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(3))
	// Only three loadable codepoints exist, so full padding is impossible.
	loadable := NewCodepointSet([]rune{'a', 'b', 'c'})

	out := obfuscate([]rune{'a'}, nil, loadable, rng)
	if len(out) > 3 {
		t.Fatalf("padded beyond the loadable universe: %d", len(out))
	}
	for _, code := range out {
		if !loadable.Contains(code) {
			t.Fatalf("non-loadable codepoint %q", code)
		}
	}
}

func TestObfuscateEmptyRequest(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(5))
	out := obfuscate(nil, nil, loadableRange('a', 'z'), rng)
	if len(out) != 0 {
		t.Fatalf("empty request must stay empty, got %d codepoints", len(out))
	}
}

func TestObfuscateDeterministicForSeed(t *testing.T) {
	t.Parallel()
	loadable := loadableRange(0x20, 0x2ff)
	a := obfuscate([]rune{'k'}, nil, loadable, rand.New(rand.NewSource(99)))
	b := obfuscate([]rune{'k'}, nil, loadable, rand.New(rand.NewSource(99)))
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sequence diverges at %d: %q vs %q", i, a[i], b[i])
		}
	}
}

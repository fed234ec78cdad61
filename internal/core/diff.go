package core

import (
	"context"
	"slices"
)

// calcNeeded converts the requested characters to codepoints and keeps those
// the font supports but has not embedded yet. Unsupported or already-present
// characters are silently dropped. The result is ascending and deduplicated.
// Miss metrics are emitted here, before any obfuscation padding, because
// padding is request shaping, not cache effectiveness.
func (s *Service) calcNeeded(ctx context.Context, requested []rune) []rune {
	if len(requested) == 0 {
		return nil
	}

	s.mu.RLock()
	loadable := s.loadable
	seen := make(map[rune]bool, len(requested))
	needed := make([]rune, 0, len(requested))
	for _, code := range requested {
		if seen[code] {
			continue
		}
		seen[code] = true
		if !loadable.Contains(code) {
			continue
		}
		if s.chars[code] {
			continue
		}
		needed = append(needed, code)
	}
	s.mu.RUnlock()

	slices.Sort(needed)
	s.metrics.recordDiff(ctx, s.font, len(requested), len(needed))
	if len(needed) > 0 {
		s.logger.Debug("diff.misses", "requested", len(requested), "needed", len(needed))
	}
	return needed
}

// stillNeeded re-filters a previously diffed chunk against the current
// character list, dropping codepoints a prior cycle already embedded.
func (s *Service) stillNeeded(codes []rune) []rune {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rune, 0, len(codes))
	for _, code := range codes {
		if s.loadable.Contains(code) && !s.chars[code] {
			out = append(out, code)
		}
	}
	return out
}

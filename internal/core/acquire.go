package core

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"pkt.systems/glyphd/internal/storage"
)

// ensureBase acquires the base font representation, trying the persistent
// store, then the merged-bundle source, then the network. Each source that
// fails validation is treated as absent, never fatal. Runs on the worker
// goroutine only.
func (s *Service) ensureBase(ctx context.Context) error {
	s.mu.RLock()
	ready := s.baseReady
	s.mu.RUnlock()
	if ready {
		return nil
	}

	if s.dropCache {
		s.dropCache = false
		if s.persist {
			if err := s.store.DeleteFont(ctx, s.font.Key()); err != nil {
				s.logger.Warn("base.drop_cache.delete_failure", "error", err)
			} else {
				s.logger.Info("base.drop_cache.deleted")
			}
		}
		if s.editor != nil {
			if err := s.editor.Clear(s.font); err != nil {
				s.logger.Warn("base.drop_cache.editor_clear_failure", "error", err)
			}
		}
	}

	if s.persist {
		rec, err := s.store.LoadFont(ctx, s.font.Key())
		switch {
		case err == nil:
			if verr := validateRecord(rec); verr == nil {
				s.adoptRecord(rec)
				s.logger.Info("base.acquired", "source", "store",
					"chars", len(rec.Meta.Chars), "bytes", len(rec.Bytes))
				return nil
			} else {
				// A record that decodes but fails the cross-check is a crash
				// artifact; drop it so the next session does not re-read it.
				s.reportFault(ctx, Fault{
					Code:   CodeSourceAbsent,
					Font:   s.font,
					Detail: "persisted record failed validation",
					Err:    verr,
				})
				s.deletePersisted(ctx)
			}
		case errors.Is(err, storage.ErrNotFound):
			// First session for this font; fall through silently.
		case errors.Is(err, storage.ErrCorrupt):
			s.reportFault(ctx, Fault{
				Code:   CodeSourceAbsent,
				Font:   s.font,
				Detail: "persisted record corrupt",
				Err:    err,
			})
			s.deletePersisted(ctx)
		default:
			s.reportFault(ctx, Fault{
				Code:   CodeSourceAbsent,
				Font:   s.font,
				Detail: "store read failed",
				Err:    err,
			})
		}
	}

	if s.merged != nil {
		if base, ok := s.merged.BaseFor(s.font); ok {
			if verr := validateMergedBase(base); verr == nil {
				s.adoptMergedBase(base)
				s.logger.Info("base.acquired", "source", "merged",
					"chars", len(base.Chars), "bytes", len(base.Bytes))
				s.persistCurrent(ctx)
				return nil
			} else {
				s.reportFault(ctx, Fault{
					Code:   CodeSourceAbsent,
					Font:   s.font,
					Detail: "merged bundle failed validation",
					Err:    verr,
				})
			}
		}
	}

	return s.acquireFromNetwork(ctx)
}

// acquireFromNetwork fetches, decodes, and synchronously persists a fresh
// base. A reload after this returns must observe a complete cached base;
// persistence failure is logged and reported but never blocks usable data.
func (s *Service) acquireFromNetwork(ctx context.Context) error {
	raw, err := s.source.FetchBase(ctx, s.font)
	if err != nil {
		return fmt.Errorf("fetch base: %w", err)
	}
	info, fontBytes, err := s.editor.DecodeBase(raw)
	if err != nil {
		return fmt.Errorf("decode base: %w", err)
	}

	s.mu.Lock()
	s.fileInfo = info
	s.loadable = loadableFromInfo(info)
	s.chars = make(map[rune]bool)
	s.fontBytes = fontBytes
	s.baseReady = true
	s.mu.Unlock()

	s.logger.Info("base.acquired", "source", "network",
		"loadable", s.loadable.Len(), "bytes", len(fontBytes),
		"fingerprint", info.Fingerprint)
	s.persistCurrent(ctx)
	return nil
}

// adoptRecord installs a validated persisted record as the current base
// generation.
func (s *Service) adoptRecord(rec *storage.FontRecord) {
	info := &FileInfo{
		CodepointMap: make(map[rune]uint32, len(rec.Meta.Glyphs)),
		OutlineOnly:  rec.Meta.OutlineOnly,
		Fingerprint:  rec.Meta.Fingerprint,
	}
	for _, g := range rec.Meta.Glyphs {
		info.CodepointMap[rune(g.Code)] = g.Loc
	}
	chars := make(map[rune]bool, len(rec.Meta.Chars))
	for _, code := range rec.Meta.Chars {
		chars[rune(code)] = true
	}

	s.mu.Lock()
	s.fileInfo = info
	s.loadable = loadableFromInfo(info)
	s.chars = chars
	s.fontBytes = rec.Bytes
	s.baseReady = true
	s.mu.Unlock()
}

// adoptMergedBase installs a validated merged-bundle slice as the current
// base generation.
func (s *Service) adoptMergedBase(base *MergedBase) {
	info := *base.Info
	chars := make(map[rune]bool, len(base.Chars))
	for _, code := range base.Chars {
		chars[code] = true
	}

	s.mu.Lock()
	s.fileInfo = &info
	s.loadable = loadableFromInfo(&info)
	s.chars = chars
	s.fontBytes = append([]byte(nil), base.Bytes...)
	s.baseReady = true
	s.mu.Unlock()
}

// currentRecord snapshots the live state into its persisted form.
func (s *Service) currentRecord() *storage.FontRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.baseReady {
		return nil
	}
	meta := &storage.FontMeta{
		Fingerprint:   s.fileInfo.Fingerprint,
		OutlineOnly:   s.fileInfo.OutlineOnly,
		Glyphs:        make([]storage.GlyphLoc, 0, len(s.fileInfo.CodepointMap)),
		Chars:         make([]int32, 0, len(s.chars)),
		UpdatedAtUnix: s.clock.Now().Unix(),
	}
	for code, loc := range s.fileInfo.CodepointMap {
		meta.Glyphs = append(meta.Glyphs, storage.GlyphLoc{Code: int32(code), Loc: loc})
	}
	slices.SortFunc(meta.Glyphs, func(a, b storage.GlyphLoc) int { return int(a.Code) - int(b.Code) })
	for code := range s.chars {
		meta.Chars = append(meta.Chars, int32(code))
	}
	slices.Sort(meta.Chars)
	return &storage.FontRecord{Meta: meta, Bytes: append([]byte(nil), s.fontBytes...)}
}

// persistCurrent writes the live state to the store. Durability is
// best-effort: correctness of the live font is not contingent on it.
func (s *Service) persistCurrent(ctx context.Context) {
	if !s.persist {
		return
	}
	rec := s.currentRecord()
	if rec == nil {
		return
	}
	if err := s.store.StoreFont(ctx, s.font.Key(), rec); err != nil {
		s.reportFault(ctx, Fault{
			Code:   CodePersistFailure,
			Font:   s.font,
			Detail: "store write failed",
			Err:    err,
		})
		return
	}
	s.logger.Debug("base.persisted", "chars", len(rec.Meta.Chars), "bytes", len(rec.Bytes))
}

func (s *Service) deletePersisted(ctx context.Context) {
	if !s.persist {
		return
	}
	if err := s.store.DeleteFont(ctx, s.font.Key()); err != nil {
		s.logger.Warn("base.delete_failure", "error", err)
	}
}

// validateRecord cross-checks the character list and file metadata against
// embedded glyph presence. A failed check means "source absent".
func validateRecord(rec *storage.FontRecord) error {
	if rec == nil || rec.Meta == nil {
		return fmt.Errorf("record missing meta")
	}
	if rec.Meta.Fingerprint == "" {
		return fmt.Errorf("record missing fingerprint")
	}
	if len(rec.Bytes) == 0 {
		return fmt.Errorf("record missing font bytes")
	}
	if len(rec.Meta.Glyphs) == 0 {
		return fmt.Errorf("record missing codepoint map")
	}
	loadable := make(map[int32]bool, len(rec.Meta.Glyphs))
	for _, g := range rec.Meta.Glyphs {
		loadable[g.Code] = true
	}
	for _, code := range rec.Meta.Chars {
		if !loadable[code] {
			return fmt.Errorf("embedded char U+%04X not in codepoint map", code)
		}
	}
	return nil
}

// validateMergedBase applies the same cross-check to merged-bundle slices.
func validateMergedBase(base *MergedBase) error {
	if base == nil || base.Info == nil {
		return fmt.Errorf("merged base missing file info")
	}
	if base.Info.Fingerprint == "" {
		return fmt.Errorf("merged base missing fingerprint")
	}
	if len(base.Bytes) == 0 {
		return fmt.Errorf("merged base missing font bytes")
	}
	if len(base.Info.CodepointMap) == 0 {
		return fmt.Errorf("merged base missing codepoint map")
	}
	for _, code := range base.Chars {
		if _, ok := base.Info.CodepointMap[code]; !ok {
			return fmt.Errorf("embedded char U+%04X not in codepoint map", code)
		}
	}
	return nil
}

func loadableFromInfo(info *FileInfo) CodepointSet {
	codes := make([]rune, 0, len(info.CodepointMap))
	for code := range info.CodepointMap {
		codes = append(codes, code)
	}
	return NewCodepointSet(codes)
}

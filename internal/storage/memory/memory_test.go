package memory_test

import (
	"context"
	"errors"
	"testing"

	"pkt.systems/glyphd/internal/storage"
	"pkt.systems/glyphd/internal/storage/memory"
)

func testRecord() *storage.FontRecord {
	return &storage.FontRecord{
		Meta: &storage.FontMeta{
			Fingerprint: "abc123",
			Glyphs:      []storage.GlyphLoc{{Code: 65, Loc: 0}, {Code: 66, Loc: 12}},
			Chars:       []int32{65},
		},
		Bytes: []byte("font-bytes"),
	}
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	s := memory.New()
	if _, err := s.LoadFont(context.Background(), "noto/400"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreLoadRoundTripIsIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()
	rec := testRecord()
	if err := s.StoreFont(ctx, "noto/400", rec); err != nil {
		t.Fatalf("store: %v", err)
	}

	// Mutating the original after store must not reach the stored copy.
	rec.Meta.Fingerprint = "mutated"
	rec.Bytes[0] = 'X'

	got, err := s.LoadFont(ctx, "noto/400")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Meta.Fingerprint != "abc123" {
		t.Fatalf("store aliased caller memory: fingerprint %q", got.Meta.Fingerprint)
	}
	if string(got.Bytes) != "font-bytes" {
		t.Fatalf("store aliased caller bytes: %q", got.Bytes)
	}

	// Mutating the loaded copy must not reach the store either.
	got.Meta.Chars[0] = 99
	again, err := s.LoadFont(ctx, "noto/400")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Meta.Chars[0] != 65 {
		t.Fatalf("load aliased stored memory: chars %v", again.Meta.Chars)
	}
}

func TestDeleteFontIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()
	if err := s.DeleteFont(ctx, "absent/700"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
	if err := s.StoreFont(ctx, "noto/400", testRecord()); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s.DeleteFont(ctx, "noto/400"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.LoadFont(ctx, "noto/400"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

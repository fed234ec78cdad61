package glyphd

import (
	"fmt"
	"math/rand"
	"strings"

	"pkt.systems/glyphd/internal/clock"
	"pkt.systems/glyphd/internal/core"
	"pkt.systems/pslog"
)

// Clock abstracts time lookup; see internal/clock.
type Clock = clock.Clock

const (
	// DefaultStore points the manager at the in-memory backend when no store
	// is configured; cached bases then live for the session only.
	DefaultStore = "mem://"
	// DefaultRequestChunkSize caps codepoints per network round trip.
	DefaultRequestChunkSize = core.DefaultRequestChunkSize
)

// Config wires a Manager. Source and Editor are required; everything else
// has working defaults.
type Config struct {
	// Store selects the persistent backend by DSN: "mem://" or
	// "disk:///var/cache/glyphd". Empty uses DefaultStore.
	Store string

	// Source fetches bases and glyph bundles from the network service.
	Source GlyphSource
	// Editor is the binary transform that decodes bases and injects glyphs.
	Editor FontEditor
	// Merged optionally supplies a pre-fetched family bundle consulted
	// between the store and the network.
	Merged MergedSource
	// Reporter receives fault reports; faults never reach glyph-load
	// callers. Nil keeps log-only reporting.
	Reporter Reporter

	// RequestChunkSize caps codepoints per round trip. Zero uses the default.
	RequestChunkSize int
	// DisableObfuscation turns off decoy padding for small requests.
	DisableObfuscation bool
	// DisablePersistence skips the store entirely, forcing a network fetch
	// every session.
	DisablePersistence bool
	// DropExistingCache deletes the persisted record before the first
	// acquisition.
	DropExistingCache bool

	// Logger receives structured diagnostics. Nil discards.
	Logger pslog.Logger
	// Clock overrides time lookup, for tests.
	Clock Clock
	// RandSeed makes obfuscation decoy selection deterministic when non-zero.
	RandSeed int64
}

func (cfg *Config) validate(font FontIdentity) error {
	if strings.TrimSpace(font.Family) == "" {
		return fmt.Errorf("glyphd: font family required")
	}
	if font.Weight <= 0 {
		return fmt.Errorf("glyphd: font weight must be positive")
	}
	if cfg.Source == nil {
		return fmt.Errorf("glyphd: glyph source required")
	}
	if cfg.Editor == nil {
		return fmt.Errorf("glyphd: font editor required")
	}
	if cfg.RequestChunkSize < 0 {
		return fmt.Errorf("glyphd: request chunk size must not be negative")
	}
	return nil
}

func (cfg *Config) rand() *rand.Rand {
	if cfg.RandSeed == 0 {
		return nil
	}
	return rand.New(rand.NewSource(cfg.RandSeed))
}

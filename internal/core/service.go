// Package core implements the incremental glyph cache manager: base
// acquisition, needed-character diffing, obfuscation padding, and the
// chunked fetch/verify/inject/persist cycle, all serialized per font.
package core

import (
	"context"
	"math/rand"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"pkt.systems/glyphd/internal/clock"
	"pkt.systems/glyphd/internal/loggingutil"
	"pkt.systems/glyphd/internal/storage"
	"pkt.systems/glyphd/internal/svcfields"
	"pkt.systems/glyphd/internal/uuidv7"
	"pkt.systems/pslog"
)

// DefaultRequestChunkSize caps codepoints per network round trip.
const DefaultRequestChunkSize = 2200

// Config wires a Service's collaborators and knobs.
type Config struct {
	Font   FontIdentity
	Store  storage.Backend
	Source GlyphSource
	Editor FontEditor
	// Merged optionally supplies a pre-fetched family bundle consulted
	// between the store and the network.
	Merged MergedSource
	// Reporter receives fault reports. Nil falls back to log-only reporting.
	Reporter Reporter
	Logger   pslog.Logger
	Clock    clock.Clock
	// Rand drives obfuscation decoy selection. Nil uses a time-seeded source.
	Rand *rand.Rand

	RequestChunkSize    int
	ObfuscationDisabled bool
	PersistenceDisabled bool
	// DropExistingCache deletes the persisted record before the first
	// acquisition, forcing a fresh network base.
	DropExistingCache bool
}

// Service owns all mutable state for one font instance. It lives for the
// session; callers observe state only through completed-cycle results.
type Service struct {
	font     FontIdentity
	store    storage.Backend
	source   GlyphSource
	editor   FontEditor
	merged   MergedSource
	reporter Reporter
	logger   pslog.Logger
	clock    clock.Clock
	metrics  *cycleMetrics
	tracer   trace.Tracer

	chunkSize int
	obfuscate bool
	persist   bool
	dropCache bool

	// rng is only touched by the worker goroutine.
	rng *rand.Rand

	pending *pendingSet
	ser     *serializer
	wg      sync.WaitGroup

	// mu guards the per-generation state below. The worker is the only
	// writer; accessors take read snapshots.
	mu        sync.RWMutex
	baseReady bool
	fileInfo  *FileInfo
	loadable  CodepointSet
	chars     map[rune]bool
	fontBytes []byte
}

// New constructs the per-font service and starts its serializer worker.
func New(cfg Config) *Service {
	logger := svcfields.WithFont(
		svcfields.WithSubsystem(loggingutil.EnsureLogger(cfg.Logger), "glyphd.core"),
		cfg.Font.Key(),
	)
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	chunk := cfg.RequestChunkSize
	if chunk <= 0 {
		chunk = DefaultRequestChunkSize
	}
	s := &Service{
		font:      cfg.Font,
		store:     cfg.Store,
		source:    cfg.Source,
		editor:    cfg.Editor,
		merged:    cfg.Merged,
		reporter:  cfg.Reporter,
		logger:    logger,
		clock:     clk,
		metrics:   newCycleMetrics(logger),
		tracer:    otel.Tracer("pkt.systems/glyphd/core"),
		chunkSize: chunk,
		obfuscate: !cfg.ObfuscationDisabled,
		persist:   !cfg.PersistenceDisabled && cfg.Store != nil,
		dropCache: cfg.DropExistingCache,
		rng:       rng,
		pending:   newPendingSet(),
		ser:       newSerializer(),
		chars:     make(map[rune]bool),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Font returns the identity this service manages.
func (s *Service) Font() FontIdentity {
	return s.font
}

// LoadGlyphs requests glyph data for every character in text. The call
// blocks until its cycle reaches a terminal state. Cycle-level faults are
// reported, never returned: the result degrades to "nothing new this cycle".
// The returned error is non-nil only when the serializer hand-off failed or
// ctx ended before the cycle started.
func (s *Service) LoadGlyphs(ctx context.Context, text string) (LoadResult, error) {
	chars := []rune(text)
	s.pending.add(chars)
	t := &task{
		id:    uuidv7.NewString(),
		kind:  taskLoad,
		chars: chars,
		done:  make(chan taskResult, 1),
	}
	return s.submit(ctx, t)
}

// Prepare runs base acquisition without requesting any glyphs. Unlike glyph
// loads, acquisition errors are returned so tooling can act on them.
func (s *Service) Prepare(ctx context.Context) error {
	t := &task{
		id:   uuidv7.NewString(),
		kind: taskPrepare,
		done: make(chan taskResult, 1),
	}
	_, err := s.submit(ctx, t)
	return err
}

func (s *Service) submit(ctx context.Context, t *task) (LoadResult, error) {
	if err := ctx.Err(); err != nil {
		return LoadResult{}, err
	}
	if err := s.ser.enqueue(t); err != nil {
		s.reportFault(ctx, Fault{
			Code:   CodeLockFailed,
			Font:   s.font,
			Detail: "serializer rejected submission",
			Err:    err,
		})
		return LoadResult{}, err
	}
	select {
	case out := <-t.done:
		return out.res, out.err
	case <-ctx.Done():
		// The cycle still runs to a terminal state; only the caller stops
		// waiting for it.
		return LoadResult{}, ctx.Err()
	}
}

// CachedCharacters returns the embedded codepoints, ascending.
func (s *Service) CachedCharacters() []rune {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rune, 0, len(s.chars))
	for code := range s.chars {
		out = append(out, code)
	}
	slices.Sort(out)
	return out
}

// FontBytes returns a copy of the current font artifact. It fails with
// ErrNoBase until a base acquisition has completed.
func (s *Service) FontBytes() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.baseReady {
		return nil, ErrNoBase
	}
	return append([]byte(nil), s.fontBytes...), nil
}

// FileInfo returns the current base generation's metadata, or nil before
// acquisition.
func (s *Service) FileInfo() *FileInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.baseReady {
		return nil
	}
	info := *s.fileInfo
	return &info
}

// Close stops the worker. Queued tasks fail with ErrClosed; the in-flight
// cycle finishes first.
func (s *Service) Close() error {
	abandoned := s.ser.close()
	for _, t := range abandoned {
		t.complete(LoadResult{}, ErrClosed)
	}
	s.wg.Wait()
	return nil
}

func (s *Service) run() {
	defer s.wg.Done()
	for {
		t, ok := s.ser.next()
		if !ok {
			return
		}
		res, err := s.runTask(context.Background(), t)
		t.complete(res, err)
	}
}

func (s *Service) reportFault(ctx context.Context, fault Fault) {
	keyvals := []any{"code", fault.Code, "detail", fault.Detail}
	if fault.Err != nil {
		keyvals = append(keyvals, "error", fault.Err)
	}
	s.logger.Warn("fault.report", keyvals...)
	s.metrics.recordFault(ctx, fault)
	if s.reporter != nil {
		s.reporter.ReportFault(ctx, fault)
	}
}

package core

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"pkt.systems/glyphd/api"
	"pkt.systems/pslog"
)

// Cycle outcomes recorded on the cycle counter.
const (
	outcomeSuccess     = "success"
	outcomeNoop        = "noop"
	outcomeFailed      = "failed"
	outcomeInvalidated = "invalidated"
)

// runTask drives one submission through the cycle state machine:
// DIFFING -> FETCHING -> VERIFYING -> INJECTING -> PERSISTING. Error exits
// land in failed (cycle-local) or invalidated (cache dropped). Runs on the
// worker goroutine; the FIFO guarantees no other cycle for this font is in
// flight.
func (s *Service) runTask(ctx context.Context, t *task) (LoadResult, error) {
	ctx, span := s.tracer.Start(ctx, "glyphd.cycle",
		trace.WithAttributes(attribute.String("font", s.font.Key())))
	defer span.End()

	start := s.clock.Now()
	outcome := outcomeNoop
	defer func() {
		span.SetAttributes(attribute.String("outcome", outcome))
		s.metrics.recordCycle(ctx, s.font, outcome, s.clock.Now().Sub(start))
	}()

	logger := s.logger.With("cycle", t.id)

	if err := s.ensureBase(ctx); err != nil {
		outcome = outcomeFailed
		s.reportFault(ctx, Fault{
			Code:   CodeTransportFailure,
			Font:   s.font,
			Detail: "base acquisition failed",
			Err:    err,
		})
		if t.kind == taskPrepare {
			return LoadResult{}, err
		}
		return LoadResult{}, nil
	}
	if t.kind == taskPrepare {
		return LoadResult{}, nil
	}

	// DIFFING.
	var codes []rune
	res := LoadResult{Requested: len(t.chars)}
	switch t.kind {
	case taskLoad:
		needed := s.calcNeeded(ctx, t.chars)
		res.Needed = len(needed)
		if len(needed) == 0 {
			return res, nil
		}
		if s.obfuscate {
			padded := obfuscate(needed, s.obfuscationExclusions(), s.snapshotLoadable(), s.rng)
			s.metrics.recordDecoys(ctx, s.font, len(padded)-len(needed))
			codes = padded
		} else {
			codes = needed
		}
		slices.Sort(codes)
	case taskFollowUp:
		codes = s.stillNeeded(t.codes)
		res.Needed = len(codes)
		if len(codes) == 0 {
			return res, nil
		}
	}

	if len(codes) > s.chunkSize {
		rest := append([]rune(nil), codes[s.chunkSize:]...)
		codes = codes[:s.chunkSize]
		res.Remaining = len(rest)
		// The remainder becomes its own submission at the tail of the FIFO
		// chain, never a nested continuation of this cycle.
		follow := &task{
			id:    t.id + "+",
			kind:  taskFollowUp,
			codes: rest,
			done:  make(chan taskResult, 1),
		}
		if err := s.ser.enqueue(follow); err != nil {
			s.reportFault(ctx, Fault{
				Code:   CodeLockFailed,
				Font:   s.font,
				Detail: "follow-up chunk rejected",
				Err:    err,
			})
		} else {
			logger.Debug("cycle.chunk.deferred", "sent", len(codes), "deferred", len(rest))
		}
	}

	// FETCHING.
	logger.Info("cycle.fetch.begin", "codepoints", len(codes))
	bundle, err := s.source.FetchGlyphs(ctx, s.font, codes)
	if err != nil {
		outcome = outcomeFailed
		s.reportFault(ctx, Fault{
			Code:   CodeTransportFailure,
			Font:   s.font,
			Detail: "glyph fetch failed",
			Err:    err,
		})
		return LoadResult{Requested: res.Requested, Needed: res.Needed}, nil
	}

	// VERIFYING.
	fingerprint := s.snapshotFingerprint()
	if bundle.Fingerprint != fingerprint {
		outcome = outcomeInvalidated
		s.invalidate(ctx, Fault{
			Code: CodeFingerprintMismatch,
			Font: s.font,
			Detail: fmt.Sprintf("bundle signed for %q, base is %q",
				bundle.Fingerprint, fingerprint),
		})
		return LoadResult{Requested: res.Requested, Needed: res.Needed}, nil
	}

	// INJECTING, with exactly one self-healing retry: re-fetch the base from
	// the network, then try once more.
	if err := s.injectWithRetry(ctx, logger, codes, bundle); err != nil {
		outcome = outcomeInvalidated
		s.invalidate(ctx, Fault{
			Code:   CodeInjectionFailed,
			Font:   s.font,
			Detail: "injection failed after self-healing retry",
			Err:    err,
		})
		return LoadResult{Requested: res.Requested, Needed: res.Needed}, nil
	}

	// Every codepoint in the sent chunk is now accounted for: delivered
	// glyphs are embedded and undelivered decoys were deliberately skipped
	// by the service for this generation.
	s.markPresent(codes)
	s.pending.drain(codes)
	s.metrics.recordInjected(ctx, s.font, bundle.GlyphCount)

	// PERSISTING. Best-effort; the live font stays valid on failure.
	s.persistCurrent(ctx)

	res.Injected = bundle.GlyphCount
	res.NeedsRefresh = bundle.GlyphCount > 0
	if res.NeedsRefresh {
		outcome = outcomeSuccess
	}
	logger.Info("cycle.complete",
		"injected", bundle.GlyphCount,
		"needs_refresh", res.NeedsRefresh,
		"deferred", res.Remaining,
	)
	return res, nil
}

// injectWithRetry calls the binary transform and, on the first failure,
// re-acquires the base from the network before retrying exactly once.
func (s *Service) injectWithRetry(ctx context.Context, logger pslog.Logger, codes []rune, bundle *api.GlyphBundle) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		s.mu.RLock()
		info := s.fileInfo
		fontBytes := s.fontBytes
		s.mu.RUnlock()

		updated, err := s.editor.Inject(info, codes, bundle, fontBytes)
		if err == nil {
			s.mu.Lock()
			s.fontBytes = updated
			s.mu.Unlock()
			return nil
		}
		lastErr = err
		if attempt > 0 {
			break
		}
		logger.Warn("cycle.inject.retry", "error", err)
		if err := s.acquireFromNetwork(ctx); err != nil {
			return fmt.Errorf("self-heal base refetch: %w", err)
		}
	}
	return lastErr
}

// invalidate drops the entire persisted record and the in-memory generation.
// This is the sole consistency-repair mechanism: no partial reconciliation
// between a stale base and new glyph data is ever attempted. The next
// request starts a fresh acquisition from the network.
func (s *Service) invalidate(ctx context.Context, fault Fault) {
	s.reportFault(ctx, fault)
	s.metrics.recordInvalidation(ctx, s.font)
	s.deletePersisted(ctx)
	if s.editor != nil {
		if err := s.editor.Clear(s.font); err != nil {
			s.logger.Warn("invalidate.editor_clear_failure", "error", err)
		}
	}
	s.mu.Lock()
	s.baseReady = false
	s.fileInfo = nil
	s.loadable = CodepointSet{}
	s.chars = make(map[rune]bool)
	s.fontBytes = nil
	s.mu.Unlock()
	s.logger.Warn("cache.invalidated", "code", fault.Code)
}

func (s *Service) markPresent(codes []rune) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, code := range codes {
		s.chars[code] = true
	}
}

func (s *Service) snapshotFingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fileInfo == nil {
		return ""
	}
	return s.fileInfo.Fingerprint
}

func (s *Service) snapshotLoadable() CodepointSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadable
}

// obfuscationExclusions returns the codepoints decoys must avoid: everything
// already embedded plus everything some consumer is already waiting on.
func (s *Service) obfuscationExclusions() map[rune]bool {
	out := make(map[rune]bool)
	s.mu.RLock()
	for code := range s.chars {
		out[code] = true
	}
	s.mu.RUnlock()
	s.pending.snapshot(out)
	return out
}

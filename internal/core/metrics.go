package core

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"
)

type cycleMetrics struct {
	cycles         metric.Int64Counter
	cycleDuration  metric.Int64Histogram
	missCount      metric.Int64Counter
	missRate       metric.Float64Histogram
	glyphsInjected metric.Int64Counter
	decoysAdded    metric.Int64Counter
	faults         metric.Int64Counter
	invalidations  metric.Int64Counter
}

func newCycleMetrics(logger pslog.Logger) *cycleMetrics {
	meter := otel.Meter("pkt.systems/glyphd/core")
	m := &cycleMetrics{}
	var err error

	m.cycles, err = meter.Int64Counter(
		"glyphd.cycles",
		metric.WithDescription("Completed glyph-load cycles by outcome"),
	)
	logMetricInitError(logger, "glyphd.cycles", err)

	m.cycleDuration, err = meter.Int64Histogram(
		"glyphd.cycle.duration_ms",
		metric.WithDescription("Glyph-load cycle duration"),
		metric.WithUnit("ms"),
	)
	logMetricInitError(logger, "glyphd.cycle.duration_ms", err)

	m.missCount, err = meter.Int64Counter(
		"glyphd.diff.misses",
		metric.WithDescription("Codepoints missing from the cached font, pre-obfuscation"),
	)
	logMetricInitError(logger, "glyphd.diff.misses", err)

	m.missRate, err = meter.Float64Histogram(
		"glyphd.diff.miss_rate",
		metric.WithDescription("Needed/requested percentage per diff, pre-obfuscation"),
		metric.WithUnit("%"),
	)
	logMetricInitError(logger, "glyphd.diff.miss_rate", err)

	m.glyphsInjected, err = meter.Int64Counter(
		"glyphd.glyphs.injected",
		metric.WithDescription("Glyphs embedded into cached fonts"),
	)
	logMetricInitError(logger, "glyphd.glyphs.injected", err)

	m.decoysAdded, err = meter.Int64Counter(
		"glyphd.obfuscation.decoys",
		metric.WithDescription("Decoy codepoints added to disguise small requests"),
	)
	logMetricInitError(logger, "glyphd.obfuscation.decoys", err)

	m.faults, err = meter.Int64Counter(
		"glyphd.faults",
		metric.WithDescription("Reported faults by code"),
	)
	logMetricInitError(logger, "glyphd.faults", err)

	m.invalidations, err = meter.Int64Counter(
		"glyphd.invalidations",
		metric.WithDescription("Cache generations dropped after integrity faults"),
	)
	logMetricInitError(logger, "glyphd.invalidations", err)

	return m
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("metrics.init_failure", "metric", name, "error", err)
}

func (m *cycleMetrics) recordCycle(ctx context.Context, font FontIdentity, outcome string, duration time.Duration) {
	if m == nil || m.cycles == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("font", font.Key()),
		attribute.String("outcome", outcome),
	)
	m.cycles.Add(ctx, 1, attrs)
	if m.cycleDuration != nil {
		m.cycleDuration.Record(ctx, duration.Milliseconds(), attrs)
	}
}

func (m *cycleMetrics) recordDiff(ctx context.Context, font FontIdentity, requested, needed int) {
	if m == nil || requested <= 0 {
		return
	}
	attrs := metric.WithAttributes(attribute.String("font", font.Key()))
	if m.missCount != nil {
		m.missCount.Add(ctx, int64(needed), attrs)
	}
	if m.missRate != nil {
		m.missRate.Record(ctx, float64(needed)/float64(requested)*100, attrs)
	}
}

func (m *cycleMetrics) recordInjected(ctx context.Context, font FontIdentity, glyphs int) {
	if m == nil || m.glyphsInjected == nil || glyphs <= 0 {
		return
	}
	m.glyphsInjected.Add(ctx, int64(glyphs), metric.WithAttributes(attribute.String("font", font.Key())))
}

func (m *cycleMetrics) recordDecoys(ctx context.Context, font FontIdentity, decoys int) {
	if m == nil || m.decoysAdded == nil || decoys <= 0 {
		return
	}
	m.decoysAdded.Add(ctx, int64(decoys), metric.WithAttributes(attribute.String("font", font.Key())))
}

func (m *cycleMetrics) recordFault(ctx context.Context, fault Fault) {
	if m == nil || m.faults == nil {
		return
	}
	m.faults.Add(ctx, 1, metric.WithAttributes(
		attribute.String("font", fault.Font.Key()),
		attribute.String("code", fault.Code),
	))
}

func (m *cycleMetrics) recordInvalidation(ctx context.Context, font FontIdentity) {
	if m == nil || m.invalidations == nil {
		return
	}
	m.invalidations.Add(ctx, 1, metric.WithAttributes(attribute.String("font", font.Key())))
}

// Package pipeline turns raw per-stream records into the single,
// globally time-sorted entry array the viewers consume. Per stream it
// decodes, calibrates, runs plugin event hooks and applies filters;
// across CPUs and streams it K-way merges already-sorted inputs instead
// of re-sorting.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yairfalse/traceview/pkg/domain"
	"github.com/yairfalse/traceview/pkg/plugin"
	"github.com/yairfalse/traceview/pkg/registry"
	"github.com/yairfalse/traceview/pkg/stream"
)

// Loader drives the load and merge pipeline for one registry.
type Loader struct {
	reg    *registry.Registry
	logger *zap.Logger
	tracer trace.Tracer

	entriesLoaded  metric.Int64Counter
	recordsSkipped metric.Int64Counter
	loadDuration   metric.Float64Histogram
}

// NewLoader creates a loader bound to a registry. Metric-creation
// failures degrade to logging only; they never block loading.
func NewLoader(reg *registry.Registry, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	tracer := otel.Tracer("traceview-pipeline")
	meter := otel.Meter("traceview-pipeline")

	entriesLoaded, err := meter.Int64Counter(
		"traceview_entries_loaded_total",
		metric.WithDescription("Total entries decoded and merged"),
	)
	if err != nil {
		logger.Warn("Failed to create entries loaded counter", zap.Error(err))
	}

	recordsSkipped, err := meter.Int64Counter(
		"traceview_records_skipped_total",
		metric.WithDescription("Raw records skipped as undecodable"),
	)
	if err != nil {
		logger.Warn("Failed to create records skipped counter", zap.Error(err))
	}

	loadDuration, err := meter.Float64Histogram(
		"traceview_load_duration_ms",
		metric.WithDescription("Per-stream load duration in milliseconds"),
	)
	if err != nil {
		logger.Warn("Failed to create load duration histogram", zap.Error(err))
	}

	return &Loader{
		reg:            reg,
		logger:         logger.Named("pipeline"),
		tracer:         tracer,
		entriesLoaded:  entriesLoaded,
		recordsSkipped: recordsSkipped,
		loadDuration:   loadDuration,
	}
}

// LoadStream decodes one stream into a time-sorted entry array. For
// every record, in per-CPU chronological order: the stream's clock
// calibration adjusts the timestamp, every event hook registered for
// the record's (stream, event) runs, then ID and content filters set
// the visibility mask. Undecodable records were already skipped by the
// format and only counted here.
func (l *Loader) LoadStream(ctx context.Context, s *stream.Stream) ([]domain.Entry, error) {
	ctx, span := l.tracer.Start(ctx, "load_stream",
		trace.WithAttributes(attribute.Int("stream.id", s.ID)))
	defer span.End()

	loadID := uuid.New().String()
	start := time.Now()

	arena, err := s.Format().LoadEntries(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("loading stream %d: %w", s.ID, err)
	}
	l.processArena(s, arena)

	sorted := l.mergeCPUChains(arena)
	relink(sorted)

	if l.entriesLoaded != nil {
		l.entriesLoaded.Add(ctx, int64(len(sorted)),
			metric.WithAttributes(attribute.Int("stream", s.ID)))
	}
	if l.recordsSkipped != nil && arena.Skipped > 0 {
		l.recordsSkipped.Add(ctx, int64(arena.Skipped),
			metric.WithAttributes(attribute.Int("stream", s.ID)))
	}
	if l.loadDuration != nil {
		l.loadDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.Int("stream", s.ID)))
	}
	l.logger.Info("stream loaded",
		zap.String("load_id", loadID),
		zap.Int("stream", s.ID),
		zap.Int("entries", len(sorted)),
		zap.Int("skipped", arena.Skipped),
	)
	return sorted, nil
}

// processArena runs calibration, event hooks and filters over every
// chain of the arena, in chain order so hooks can follow Next links to
// look ahead for trailing events.
func (l *Loader) processArena(s *stream.Stream, arena *stream.EntryArena) {
	hooks := l.reg.Hooks()
	mask := l.reg.FilterMask()
	cf, filterContent := s.Format().(stream.ContentFilterer)
	filterContent = filterContent && cf.ContentFilter(s) != ""

	for _, head := range arena.CPUHeads {
		for at := head; at != domain.NoEntry; at = arena.Entries[at].Next {
			e := &arena.Entries[at]
			e.TS = s.Calibrate(e.TS)

			// Visit every hook registered for this (stream, event),
			// not just the first: cooperating hooks from different
			// plugins chain on the same event id.
			for h := plugin.FindEventHandler(hooks.EventHandlers(s.ID), int(e.EventID)); h != nil; h = plugin.FindEventHandler(h.Next, int(e.EventID)) {
				h.Fn(s, e)
			}

			s.Tasks.Add(int(e.PID))
			s.ApplyIDFilters(e, mask)
			if filterContent && e.Visible&mask != 0 && !cf.MatchContent(s, e) {
				e.Visible &^= mask
			}
		}
	}
}

// mergeCPUChains K-way merges the arena's per-CPU chains into one
// time-sorted array. Ties keep the chain order of the lowest cpu, so
// equal timestamps stay in stable input order.
func (l *Loader) mergeCPUChains(arena *stream.EntryArena) []domain.Entry {
	out := make([]domain.Entry, 0, len(arena.Entries))
	cursors := make([]int32, len(arena.CPUHeads))
	copy(cursors, arena.CPUHeads)

	for {
		best := -1
		for c, at := range cursors {
			if at == domain.NoEntry {
				continue
			}
			if best < 0 || arena.Entries[at].TS < arena.Entries[cursors[best]].TS {
				best = c
			}
		}
		if best < 0 {
			return out
		}
		at := cursors[best]
		cursors[best] = arena.Entries[at].Next
		out = append(out, arena.Entries[at])
	}
}

// LoadAll loads every open stream concurrently, then K-way merges the
// per-stream sorted arrays into the master array. A failed stream fails
// the whole load; nothing partially merged is ever returned.
func (l *Loader) LoadAll(ctx context.Context) ([]domain.Entry, error) {
	streams := l.reg.Streams()
	if len(streams) == 0 {
		return nil, nil
	}

	ctx, span := l.tracer.Start(ctx, "load_all",
		trace.WithAttributes(attribute.Int("streams", len(streams))))
	defer span.End()

	loaded := make([][]domain.Entry, len(streams))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range streams {
		i, s := i, s
		g.Go(func() error {
			entries, err := l.LoadStream(gctx, s)
			if err != nil {
				return err
			}
			loaded[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := mergeN(loaded)
	relink(out)
	l.logger.Info("streams merged",
		zap.Int("streams", len(streams)),
		zap.Int("entries", len(out)),
	)
	return out, nil
}

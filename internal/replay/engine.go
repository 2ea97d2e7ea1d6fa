// Package replay re-applies journaled mutation groups whose original write
// path appears to have failed, then removes them from the journal.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dogmatiq/batchlog/batch"
	"github.com/dogmatiq/batchlog/internal/truncation"
	"github.com/dogmatiq/batchlog/persistence/batchjournal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Engine implements a single replay cycle over the batch journal.
type Engine struct {
	// Journal is the store of batch entries to replay.
	Journal batchjournal.Journal

	// Truncation reports the per-table boundary before which mutations must
	// not be re-applied.
	Truncation truncation.Oracle

	// Applier applies surviving mutations to the live dataset.
	Applier batch.Applier

	// WriteTimeout is the maximum time a normal write is allowed to be in
	// flight. Entries younger than this are not yet eligible for replay.
	WriteTimeout time.Duration

	// Now is the source of the current time for readiness checks.
	Now func() time.Time

	// Logger is the target for log messages about replay.
	Logger *slog.Logger

	// Tracer records a span per replay cycle.
	Tracer trace.Tracer

	// Counters are the cumulative statistics shared with the manager.
	Counters *Counters

	// Metrics are the instruments to record cycle activity on.
	Metrics Metrics
}

// A Result summarizes a single replay cycle.
type Result struct {
	// Scanned is the number of entries examined.
	Scanned uint64

	// Replayed is the number of entries applied and deleted, including
	// entries whose mutations were entirely dropped by truncation filtering.
	Replayed uint64

	// Pending is the number of entries that were not yet eligible for replay.
	Pending uint64

	// Corrupt is the number of entries that could not be decoded. They remain
	// in the journal untouched.
	Corrupt uint64

	// Failed is the number of entries whose mutations could not be applied.
	// They remain in the journal for a later attempt.
	Failed uint64
}

// Cycle performs a single replay cycle.
//
// If flush is true the journal is flushed first, so that entries staged
// before the cycle began are visible to its scan.
//
// An error is returned only if the journal store itself fails; in that case
// no further entries are deleted, but entries already replayed by this cycle
// stay replayed. Per-entry failures are contained and reflected in the
// result.
func (e *Engine) Cycle(ctx context.Context, flush bool) (Result, error) {
	ctx, span := e.Tracer.Start(
		ctx,
		"batchlog.replay_cycle",
		trace.WithAttributes(attribute.Bool("batchlog.flush", flush)),
	)
	defer span.End()

	res, err := e.cycle(ctx, flush)
	if err != nil {
		e.Metrics.CycleFailures.Add(ctx, 1)
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return res, err
	}

	span.SetAttributes(
		attribute.Int64("batchlog.entries_scanned", int64(res.Scanned)),
		attribute.Int64("batchlog.entries_replayed", int64(res.Replayed)),
	)

	e.Logger.DebugContext(
		ctx,
		"batch replay cycle completed",
		slog.Uint64("scanned", res.Scanned),
		slog.Uint64("replayed", res.Replayed),
		slog.Uint64("pending", res.Pending),
		slog.Uint64("corrupt", res.Corrupt),
		slog.Uint64("failed", res.Failed),
	)

	return res, nil
}

func (e *Engine) cycle(ctx context.Context, flush bool) (Result, error) {
	if flush {
		if err := e.Journal.Flush(ctx); err != nil {
			return Result{}, fmt.Errorf("unable to flush batch journal: %w", err)
		}
	}

	var res Result

	// An entry is ready to replay only once it was written at least
	// WriteTimeout ago, signaling that its original write path likely failed
	// to complete.
	threshold := e.Now().Add(-e.WriteTimeout).UnixMicro()

	err := e.Journal.Range(
		ctx,
		func(ctx context.Context, entry batchjournal.Entry) (bool, error) {
			res.Scanned++

			if entry.WrittenAt > threshold {
				res.Pending++
				return true, nil
			}

			ok, err := e.replay(ctx, entry, &res)
			return ok, err
		},
	)
	if err != nil {
		return res, fmt.Errorf("unable to scan batch journal: %w", err)
	}

	return res, nil
}

// replay decodes, filters, applies and deletes a single ready entry.
//
// It returns a non-nil error only for failures that must abort the entire
// cycle.
func (e *Engine) replay(
	ctx context.Context,
	entry batchjournal.Entry,
	res *Result,
) (bool, error) {
	g, err := batch.Unmarshal(entry.Payload)
	if err != nil {
		if !errors.Is(err, batch.ErrCorruptEntry) {
			return false, err
		}

		res.Corrupt++
		e.Metrics.CorruptEntries.Add(ctx, 1)
		e.Logger.WarnContext(
			ctx,
			"skipped corrupt batch entry",
			slog.String("entry_id", entry.ID.String()),
			slog.Any("error", err),
		)

		return true, nil
	}

	surviving, err := e.filter(ctx, entry, g)
	if err != nil {
		// The truncation store is unreadable. Applying without boundaries
		// could resurrect deleted data, so the cycle must not proceed.
		return false, err
	}

	if len(surviving) != 0 {
		if err := e.Applier.Apply(ctx, surviving); err != nil {
			res.Failed++
			e.Logger.WarnContext(
				ctx,
				"unable to replay batch entry, it will be retried",
				slog.String("entry_id", entry.ID.String()),
				slog.Any("error", err),
			)

			return true, nil
		}
	}

	if err := e.Journal.Delete(ctx, entry.ID); err != nil {
		return false, fmt.Errorf("unable to delete batch entry: %w", err)
	}

	res.Replayed++
	e.Counters.Replayed.Add(1)
	e.Metrics.BatchesReplayed.Add(ctx, 1)

	return true, nil
}

// filter returns the mutations in g that are not excluded by a truncation
// boundary on their target table.
//
// A mutation survives if its table has never been truncated, or if the entry
// was written strictly after the truncation.
func (e *Engine) filter(
	ctx context.Context,
	entry batchjournal.Entry,
	g batch.Group,
) ([]batch.Mutation, error) {
	surviving := make([]batch.Mutation, 0, len(g.Mutations))

	for _, m := range g.Mutations {
		boundary, ok, err := e.Truncation.Boundary(ctx, m.Table)
		if err != nil {
			return nil, fmt.Errorf("unable to read truncation boundary for table %q: %w", m.Table, err)
		}

		if ok && entry.WrittenAt <= boundary {
			e.Logger.DebugContext(
				ctx,
				"dropped mutation for truncated table",
				slog.String("entry_id", entry.ID.String()),
				slog.String("table", m.Table),
			)
			continue
		}

		surviving = append(surviving, m)
	}

	return surviving, nil
}

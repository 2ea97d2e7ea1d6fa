package replay

import (
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
)

// Counters are process-wide cumulative batchlog statistics.
//
// They are monotonic: Seen is incremented only by the write path and Replayed
// only by the replay engine. Neither reflects deletions; the count of
// outstanding entries is a property of the journal itself.
type Counters struct {
	Seen     atomic.Uint64
	Replayed atomic.Uint64
}

// Metrics are the OpenTelemetry instruments published by the batchlog.
type Metrics struct {
	BatchesLogged   metric.Int64Counter
	BatchesReplayed metric.Int64Counter
	CorruptEntries  metric.Int64Counter
	CycleFailures   metric.Int64Counter
}

// NewMetrics creates the batchlog's instruments on the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	var (
		m   Metrics
		err error
	)

	m.BatchesLogged, err = meter.Int64Counter(
		"batchlog.batches.logged",
		metric.WithDescription("The number of mutation groups that have been written to the batch journal."),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return Metrics{}, err
	}

	m.BatchesReplayed, err = meter.Int64Counter(
		"batchlog.batches.replayed",
		metric.WithDescription("The number of journaled mutation groups that have been successfully replayed and removed."),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return Metrics{}, err
	}

	m.CorruptEntries, err = meter.Int64Counter(
		"batchlog.entries.corrupt",
		metric.WithDescription("The number of journal entries that could not be decoded."),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return Metrics{}, err
	}

	m.CycleFailures, err = meter.Int64Counter(
		"batchlog.replay.failures",
		metric.WithDescription("The number of replay cycles that were aborted by a journal store error."),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return Metrics{}, err
	}

	return m, nil
}

// Package batchlog journals groups of mutations so that they can be re-applied
// if the node that issued them crashes, or a replica fails, before every
// mutation is acknowledged.
package batchlog

import (
	"context"
	"fmt"
	"sync"

	"github.com/dogmatiq/batchlog/batch"
	"github.com/dogmatiq/batchlog/internal/managerconfig"
	"github.com/dogmatiq/batchlog/internal/messaging"
	"github.com/dogmatiq/batchlog/internal/replay"
	"github.com/dogmatiq/batchlog/internal/signaling"
	"github.com/dogmatiq/batchlog/internal/truncation"
	"github.com/dogmatiq/batchlog/persistence/batchjournal"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName identifies this module to OpenTelemetry.
const instrumentationName = "github.com/dogmatiq/batchlog"

// Manager is the public interface to the batchlog.
//
// The write path ([Manager.LogBatch]) may be used by arbitrary concurrent
// callers as soon as the manager is constructed. Replay, both scheduled and
// on-demand, requires [Manager.Run] to be executing.
type Manager struct {
	cfg      managerconfig.Config
	counters replay.Counters
	metrics  replay.Metrics
	tracer   trace.Tracer

	replayQueue messaging.ExchangeQueue[messaging.None, replay.Result]
	shutdown    signaling.Latch

	journalM sync.Mutex
	journal  batchjournal.Journal
}

// New returns a new batchlog manager.
//
// It panics if no journal store or applier is configured.
func New(options ...ManagerOption) *Manager {
	cfg := managerconfig.New(options)

	metrics, err := replay.NewMetrics(
		cfg.MeterProvider.Meter(instrumentationName),
	)
	if err != nil {
		panic(err)
	}

	return &Manager{
		cfg:     cfg,
		metrics: metrics,
		tracer:  cfg.TracerProvider.Tracer(instrumentationName),
	}
}

// LogBatch journals a mutation group and returns the entry that was written.
//
// The entry is given a fresh time-ordered ID and the current time as its
// write timestamp unless overridden with [WithEntryID] or [WithWriteTime].
//
// The entry is staged; it becomes visible to replay after the journal is next
// flushed.
func (m *Manager) LogBatch(
	ctx context.Context,
	g batch.Group,
	options ...LogOption,
) (batchjournal.Entry, error) {
	opts := logOptions{
		writtenAt: m.cfg.Now().UnixMicro(),
	}

	for _, opt := range options {
		opt(&opts)
	}

	if opts.id == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return batchjournal.Entry{}, fmt.Errorf("unable to generate batch entry ID: %w", err)
		}
		opts.id = id
	}

	payload, err := batch.Marshal(g)
	if err != nil {
		return batchjournal.Entry{}, err
	}

	e := batchjournal.Entry{
		ID:        opts.id,
		WrittenAt: opts.writtenAt,
		Payload:   payload,
	}

	j, err := m.journalHandle(ctx)
	if err != nil {
		return batchjournal.Entry{}, err
	}

	if err := j.Append(ctx, e); err != nil {
		return batchjournal.Entry{}, fmt.Errorf("unable to append batch entry: %w", err)
	}

	m.counters.Seen.Add(1)
	m.metrics.BatchesLogged.Add(ctx, 1)

	return e, nil
}

// CountAllBatches returns the number of entries currently in the journal,
// including entries that are staged but not yet visible to replay.
func (m *Manager) CountAllBatches(ctx context.Context) (uint64, error) {
	j, err := m.journalHandle(ctx)
	if err != nil {
		return 0, err
	}

	return j.Count(ctx)
}

// TotalBatchesSeen returns the cumulative number of batches written via
// LogBatch by this process.
func (m *Manager) TotalBatchesSeen() uint64 {
	return m.counters.Seen.Load()
}

// TotalBatchesReplayed returns the cumulative number of batches successfully
// replayed by this process.
func (m *Manager) TotalBatchesReplayed() uint64 {
	return m.counters.Replayed.Load()
}

// ReplayAllFailedBatches flushes the journal then performs a full replay
// cycle, blocking until the cycle completes.
//
// If a cycle is already in progress the call blocks until that cycle
// finishes, then runs its own.
//
// A cycle-level failure is reported to the caller, but progress made before
// the failure is kept: entries already replayed stay deleted, and the
// remainder stay journaled for the next attempt.
func (m *Manager) ReplayAllFailedBatches(ctx context.Context) error {
	_, err := m.replayQueue.Exchange(ctx, messaging.None{})
	return err
}

// Run executes scheduled replay cycles and services on-demand replay
// requests.
//
// It blocks until ctx is canceled or the manager is closed.
func (m *Manager) Run(ctx context.Context) error {
	j, err := m.journalHandle(ctx)
	if err != nil {
		return err
	}

	ks, err := m.cfg.Keyspaces.Open(ctx, m.cfg.TruncationKeyspace)
	if err != nil {
		return fmt.Errorf("unable to open truncation keyspace: %w", err)
	}
	defer ks.Close()

	r := &replay.Replayer{
		Engine: &replay.Engine{
			Journal:      j,
			Truncation:   &truncation.KeyspaceOracle{Keyspace: ks},
			Applier:      m.cfg.Applier,
			WriteTimeout: m.cfg.WriteTimeout,
			Now:          m.cfg.Now,
			Logger:       m.cfg.Logger,
			Tracer:       m.tracer,
			Counters:     &m.counters,
			Metrics:      m.metrics,
		},
		Interval:    m.cfg.ReplayInterval,
		ReplayQueue: &m.replayQueue,
		Shutdown:    &m.shutdown,
	}

	return r.Run(ctx)
}

// Close stops the manager's background schedule.
//
// The write path remains usable after Close; only replay stops.
func (m *Manager) Close() error {
	m.shutdown.Signal()
	return nil
}

// journalHandle returns the journal that holds batch entries, opening it on
// first use. The same handle is shared by the write path and the replayer.
func (m *Manager) journalHandle(ctx context.Context) (batchjournal.Journal, error) {
	m.journalM.Lock()
	defer m.journalM.Unlock()

	if m.journal == nil {
		j, err := m.cfg.Journals.Open(ctx, m.cfg.JournalName)
		if err != nil {
			return nil, fmt.Errorf("unable to open batch journal: %w", err)
		}
		m.journal = j
	}

	return m.journal, nil
}

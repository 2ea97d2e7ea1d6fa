package batchlog

import (
	"log/slog"
	"time"

	"github.com/dogmatiq/batchlog/batch"
	"github.com/dogmatiq/batchlog/internal/managerconfig"
	"github.com/dogmatiq/batchlog/persistence/batchjournal"
	"github.com/dogmatiq/batchlog/persistence/kv"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// FerriteRegistry is a registry of the environment variables used by the
// batchlog.
//
// It can be used with the [ferrite] package.
var FerriteRegistry = managerconfig.FerriteRegistry

// A ManagerOption configures the behavior of a [Manager].
type ManagerOption func(*managerconfig.Config)

// WithOptionsFromEnvironment is a [ManagerOption] that configures the manager
// using options specified via environment variables.
//
// Any explicit options passed to [New] take precedence over options from the
// environment.
func WithOptionsFromEnvironment() ManagerOption {
	return func(cfg *managerconfig.Config) {
		cfg.UseEnv = true
	}
}

// WithJournalStore is a [ManagerOption] that sets the store that persists
// batch entries.
func WithJournalStore(s batchjournal.Store) ManagerOption {
	return func(cfg *managerconfig.Config) {
		cfg.Journals = s
	}
}

// WithKeyValueStore is a [ManagerOption] that sets the key/value store that
// holds truncation records.
//
// If no store is configured, no table is ever considered truncated.
func WithKeyValueStore(s kv.Store) ManagerOption {
	return func(cfg *managerconfig.Config) {
		cfg.Keyspaces = s
	}
}

// WithApplier is a [ManagerOption] that sets the execution layer used to
// apply replayed mutations to the live dataset.
func WithApplier(a batch.Applier) ManagerOption {
	if a == nil {
		panic("applier must not be nil")
	}

	return func(cfg *managerconfig.Config) {
		cfg.Applier = a
	}
}

// WithWriteTimeout is a [ManagerOption] that sets the maximum time a normal
// write may be in flight before its batch becomes eligible for replay.
func WithWriteTimeout(d time.Duration) ManagerOption {
	if d <= 0 {
		panic("write timeout must be positive")
	}

	return func(cfg *managerconfig.Config) {
		cfg.WriteTimeout = d
	}
}

// WithReplayInterval is a [ManagerOption] that sets the delay between
// scheduled replay cycles.
func WithReplayInterval(d time.Duration) ManagerOption {
	if d <= 0 {
		panic("replay interval must be positive")
	}

	return func(cfg *managerconfig.Config) {
		cfg.ReplayInterval = d
	}
}

// WithLogger is a [ManagerOption] that sets the logger used by the manager.
func WithLogger(l *slog.Logger) ManagerOption {
	if l == nil {
		panic("logger must not be nil")
	}

	return func(cfg *managerconfig.Config) {
		cfg.Logger = l
	}
}

// WithMetricProvider is a [ManagerOption] that sets the OpenTelemetry meter
// provider used by the manager.
func WithMetricProvider(p metric.MeterProvider) ManagerOption {
	if p == nil {
		panic("metric provider must not be nil")
	}

	return func(cfg *managerconfig.Config) {
		cfg.MeterProvider = p
	}
}

// WithTracerProvider is a [ManagerOption] that sets the OpenTelemetry tracer
// provider used by the manager.
func WithTracerProvider(p trace.TracerProvider) ManagerOption {
	if p == nil {
		panic("tracer provider must not be nil")
	}

	return func(cfg *managerconfig.Config) {
		cfg.TracerProvider = p
	}
}

// WithClock is a [ManagerOption] that sets the source of the current time,
// used both for entry write timestamps and replay readiness checks.
func WithClock(now func() time.Time) ManagerOption {
	if now == nil {
		panic("clock must not be nil")
	}

	return func(cfg *managerconfig.Config) {
		cfg.Now = now
	}
}

// A LogOption configures a single call to [Manager.LogBatch].
type LogOption func(*logOptions)

type logOptions struct {
	id        uuid.UUID
	writtenAt int64
}

// WithEntryID is a [LogOption] that sets an explicit entry ID instead of
// generating a fresh one.
func WithEntryID(id uuid.UUID) LogOption {
	if id == uuid.Nil {
		panic("entry ID must not be nil")
	}

	return func(opts *logOptions) {
		opts.id = id
	}
}

// WithWriteTime is a [LogOption] that sets an explicit write timestamp
// instead of the current time, as used for deferred or backdated entries.
func WithWriteTime(t time.Time) LogOption {
	return func(opts *logOptions) {
		opts.writtenAt = t.UnixMicro()
	}
}

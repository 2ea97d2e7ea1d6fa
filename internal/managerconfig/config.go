// Package managerconfig builds the configuration of a batchlog manager from
// explicit options and environment variables.
package managerconfig

import (
	"io"
	"log/slog"
	"time"

	"github.com/dogmatiq/batchlog/batch"
	"github.com/dogmatiq/batchlog/internal/replay"
	"github.com/dogmatiq/batchlog/persistence/batchjournal"
	"github.com/dogmatiq/batchlog/persistence/kv"
	"github.com/dogmatiq/ferrite"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// FerriteRegistry is a registry of the environment variables used by the
// batchlog.
var FerriteRegistry = ferrite.NewRegistry(
	"dogmatiq.batchlog",
	"Batchlog",
	ferrite.WithDocumentationURL("https://github.com/dogmatiq/batchlog#readme"),
)

// DefaultWriteTimeout is the default amount of time a normal write may be in
// flight before its batch is considered abandoned and becomes eligible for
// replay. It is twice the conventional 10s write RPC timeout.
const DefaultWriteTimeout = 20 * time.Second

// DefaultJournalName is the name of the journal that holds batch entries.
const DefaultJournalName = "batches"

// DefaultTruncationKeyspace is the name of the keyspace that holds truncation
// records.
const DefaultTruncationKeyspace = "truncation-records"

var (
	writeTimeout = ferrite.
			Duration("BATCHLOG_WRITE_TIMEOUT", "the maximum time a normal write may be in flight before its batch becomes eligible for replay").
			WithDefault(DefaultWriteTimeout).
			Required(ferrite.WithRegistry(FerriteRegistry))

	replayInterval = ferrite.
			Duration("BATCHLOG_REPLAY_INTERVAL", "the delay between scheduled replay cycles").
			WithDefault(replay.DefaultInterval).
			Required(ferrite.WithRegistry(FerriteRegistry))
)

// Config encapsulates the configuration of a batchlog manager, built by
// applying option functions.
type Config struct {
	UseEnv bool

	Journals           batchjournal.Store
	JournalName        string
	Keyspaces          kv.Store
	TruncationKeyspace string

	Applier batch.Applier

	WriteTimeout   time.Duration
	ReplayInterval time.Duration

	Logger         *slog.Logger
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider

	Now func() time.Time
}

// New returns a new configuration built by applying the given options.
func New[Option ~func(*Config)](options []Option) Config {
	var c Config

	for _, opt := range options {
		opt(&c)
	}

	c.finalize()

	return c
}

func (c *Config) finalize() {
	c.finalizePersistence()
	c.finalizeTiming()

	if c.Applier == nil {
		panic("no applier is configured, provide the WithApplier() option")
	}

	if c.Logger == nil {
		c.Logger = slog.New(
			slog.NewTextHandler(io.Discard, nil),
		)
	}

	if c.MeterProvider == nil {
		c.MeterProvider = noopmetric.NewMeterProvider()
	}

	if c.TracerProvider == nil {
		c.TracerProvider = nooptrace.NewTracerProvider()
	}

	if c.Now == nil {
		c.Now = time.Now
	}
}

func (c *Config) finalizeTiming() {
	if c.WriteTimeout <= 0 {
		if c.UseEnv {
			c.WriteTimeout = writeTimeout.Value()
		} else {
			c.WriteTimeout = DefaultWriteTimeout
		}
	}

	if c.ReplayInterval <= 0 {
		if c.UseEnv {
			c.ReplayInterval = replayInterval.Value()
		} else {
			c.ReplayInterval = replay.DefaultInterval
		}
	}
}

// Package truncation provides a read-only view of table truncation records,
// used to prevent replay from resurrecting deleted data.
package truncation

import (
	"context"
	"fmt"

	"github.com/dogmatiq/batchlog/persistence/kv"
	"github.com/vmihailenco/msgpack/v5"
)

// A Record describes the most recent truncation of a single table.
//
// Records are owned by the storage layer that performs truncations; the
// batchlog only ever reads them.
type Record struct {
	// TruncatedAt is the logical timestamp of the truncation, in microseconds
	// since the Unix epoch. Writes at or before this time are considered
	// erased.
	TruncatedAt int64 `msgpack:"t"`

	// RecoveryPosition is the storage engine's log position at the time of
	// the truncation.
	RecoveryPosition uint64 `msgpack:"p"`
}

// An Oracle exposes, per table, the logical timestamp boundary before which no
// mutation should be re-applied.
type Oracle interface {
	// Boundary returns the truncation boundary for the given table.
	//
	// ok is false if the table has never been truncated, in which case no
	// mutation is ever dropped on that basis.
	Boundary(ctx context.Context, table string) (truncatedAt int64, ok bool, err error)
}

// KeyspaceOracle is an [Oracle] that reads truncation records from a
// [kv.Keyspace], keyed by table name.
type KeyspaceOracle struct {
	Keyspace kv.Keyspace
}

// Boundary returns the truncation boundary for the given table.
func (o *KeyspaceOracle) Boundary(ctx context.Context, table string) (int64, bool, error) {
	data, err := o.Keyspace.Get(ctx, []byte(table))
	if err != nil {
		return 0, false, err
	}

	if len(data) == 0 {
		return 0, false, nil
	}

	var rec Record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return 0, false, fmt.Errorf("unable to unmarshal truncation record for %q: %w", table, err)
	}

	return rec.TruncatedAt, true, nil
}

// Save writes the truncation record for the given table.
//
// It is intended for use by the storage layer that owns the records, and by
// tests.
func Save(ctx context.Context, ks kv.Keyspace, table string, rec Record) error {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("unable to marshal truncation record for %q: %w", table, err)
	}

	return ks.Set(ctx, []byte(table), data)
}

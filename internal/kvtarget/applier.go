// Package kvtarget is an execution layer that applies mutations to key/value
// keyspaces, one keyspace per table.
//
// It serves as the reference implementation of the [batch.Applier] contract
// and as the target store for end-to-end tests.
package kvtarget

import (
	"context"
	"fmt"

	"github.com/dogmatiq/batchlog/batch"
	"github.com/dogmatiq/batchlog/persistence/kv"
	"github.com/vmihailenco/msgpack/v5"
)

// Applier applies mutations to keyspaces within Keyspaces.
//
// Each row is stored under its partition key as a map of column name to
// value; applying a mutation merges its column updates into the existing row.
type Applier struct {
	Keyspaces kv.Store
}

// Apply applies each mutation in order, stopping at the first failure.
//
// There is no atomicity across mutations; on failure the caller is expected
// to retry the entire set, and re-applying a mutation is harmless because
// column merges are idempotent.
func (a *Applier) Apply(ctx context.Context, mutations []batch.Mutation) error {
	for _, m := range mutations {
		if err := a.apply(ctx, m); err != nil {
			return fmt.Errorf("unable to apply mutation to table %q: %w", m.Table, err)
		}
	}

	return nil
}

func (a *Applier) apply(ctx context.Context, m batch.Mutation) error {
	ks, err := a.Keyspaces.Open(ctx, m.Table)
	if err != nil {
		return err
	}
	defer ks.Close()

	row, _, err := readRow(ctx, ks, m.Key)
	if err != nil {
		return err
	}

	if row == nil {
		row = map[string][]byte{}
	}

	for _, c := range m.Columns {
		row[string(c.Name)] = c.Value
	}

	data, err := msgpack.Marshal(row)
	if err != nil {
		return err
	}

	return ks.Set(ctx, m.Key, data)
}

// Row returns the row with the given partition key from the given table.
//
// ok is false if the row does not exist.
func Row(
	ctx context.Context,
	keyspaces kv.Store,
	table string,
	key []byte,
) (row map[string][]byte, ok bool, err error) {
	ks, err := keyspaces.Open(ctx, table)
	if err != nil {
		return nil, false, err
	}
	defer ks.Close()

	return readRow(ctx, ks, key)
}

func readRow(
	ctx context.Context,
	ks kv.Keyspace,
	key []byte,
) (map[string][]byte, bool, error) {
	data, err := ks.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}

	if len(data) == 0 {
		return nil, false, nil
	}

	var row map[string][]byte
	if err := msgpack.Unmarshal(data, &row); err != nil {
		return nil, false, err
	}

	return row, true, nil
}

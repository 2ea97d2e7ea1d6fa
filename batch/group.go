// Package batch describes groups of mutations that are journaled together for
// crash recovery, and the codec used to persist them as a single journal
// record.
package batch

// A Column is a single column update within a mutation.
type Column struct {
	Name  []byte `msgpack:"n"`
	Value []byte `msgpack:"v"`
}

// A Mutation is a set of column updates destined for a single partition of a
// single table.
type Mutation struct {
	// Table identifies the target table.
	Table string `msgpack:"t"`

	// Key is the partition key of the row being mutated.
	Key []byte `msgpack:"k"`

	// Columns are the column updates to apply, in order.
	Columns []Column `msgpack:"c"`
}

// A Group is an ordered collection of mutations that share a single logical
// write. A group may target several unrelated tables.
//
// Groups are not modified once they have been journaled.
type Group struct {
	Mutations []Mutation `msgpack:"m"`
}

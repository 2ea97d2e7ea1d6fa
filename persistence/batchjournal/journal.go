// Package batchjournal defines the contract between the batchlog and the
// storage engine that persists its entries.
package batchjournal

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUnavailable indicates that the journal store itself cannot currently
// service requests.
//
// Drivers wrap store-level failures in this error; replay treats any
// operation that fails this way as grounds to abort the cycle.
var ErrUnavailable = errors.New("batch journal is unavailable")

// An Entry is a single journaled mutation group.
//
// Entries are never modified after they are appended; replay either deletes an
// entry or leaves it untouched for a later attempt.
type Entry struct {
	// ID uniquely identifies the entry. IDs are time-ordered.
	ID uuid.UUID

	// WrittenAt is the logical timestamp of the write that produced the
	// entry, in microseconds since the Unix epoch.
	WrittenAt int64

	// Payload is the encoded mutation group.
	Payload []byte
}

// A RangeFunc is a function used to range over the entries in a [Journal].
//
// If err is non-nil, ranging stops and err is propagated up the stack.
// Otherwise, if ok is false, ranging stops without any error being propagated.
type RangeFunc func(ctx context.Context, e Entry) (ok bool, err error)

// A Journal is a durable store of batch entries keyed by entry ID.
type Journal interface {
	// Append durably stages e.
	//
	// Staged entries are only guaranteed to be visible to Range after a
	// subsequent call to Flush.
	Append(ctx context.Context, e Entry) error

	// Flush makes all previously staged entries visible to Range.
	Flush(ctx context.Context) error

	// Range invokes fn once for each visible entry, in an undefined order.
	//
	// Each call ranges over a snapshot of the journal; it is not a persistent
	// cursor.
	Range(ctx context.Context, fn RangeFunc) error

	// Delete removes the entry with the given ID.
	//
	// It is not an error to delete an entry that does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// Count returns the number of entries that have been appended but not
	// deleted, whether or not they are visible to Range yet.
	Count(ctx context.Context) (uint64, error)

	// Close closes the journal.
	Close() error
}

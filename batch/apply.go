package batch

import "context"

// An Applier applies mutations to the live dataset.
//
// It is the journal's contract with the external execution layer. No atomicity
// is required across the mutations of a single call; a non-nil error indicates
// that at least one mutation was not applied and that the caller should retry
// the whole set later.
type Applier interface {
	Apply(ctx context.Context, mutations []Mutation) error
}

// Package fsm provides a simple finite state machine for implementing
// long-running loops as a set of states.
package fsm

import (
	"context"
)

// fsm is the internal state of a finite state machine.
type fsm struct {
	ctx     context.Context
	current State
	err     error
}

// Start runs the state machine until it is stopped or an error occurs.
func Start(ctx context.Context, initial State) error {
	m := &fsm{
		ctx:     ctx,
		current: initial,
	}

	for m.current != nil {
		s := m.current

		act := s(m.ctx)
		if act.apply == nil {
			panic("state must return a valid action")
		}

		act.apply(m)
	}

	return m.err
}

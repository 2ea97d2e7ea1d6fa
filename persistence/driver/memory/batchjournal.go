package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dogmatiq/batchlog/persistence/batchjournal"
	"github.com/google/uuid"
)

// JournalStore is an implementation of [batchjournal.Store] that keeps
// journals in memory.
//
// The hook functions, if non-nil, are invoked as each operation executes,
// allowing tests to inject failures. They are passed the name of the journal
// being operated upon. A hook error is reported to the caller as
// [batchjournal.ErrUnavailable].
type JournalStore struct {
	journals sync.Map // map[string]*journalState

	BeforeAppend func(name string, e batchjournal.Entry) error
	AfterAppend  func(name string, e batchjournal.Entry) error
	BeforeFlush  func(name string) error
	BeforeRange  func(name string) error
	BeforeDelete func(name string, id uuid.UUID) error
}

// Open returns the journal with the given name.
func (s *JournalStore) Open(ctx context.Context, name string) (batchjournal.Journal, error) {
	state, ok := s.journals.Load(name)

	if !ok {
		state, _ = s.journals.LoadOrStore(
			name,
			&journalState{},
		)
	}

	return &journalHandle{
		store: s,
		name:  name,
		state: state.(*journalState),
	}, ctx.Err()
}

// journalState stores the underlying state of a journal.
type journalState struct {
	sync.RWMutex

	// Staged entries have been appended but are not visible to Range until
	// the journal is flushed.
	Staged []batchjournal.Entry

	// Visible entries have been published by a flush.
	Visible []batchjournal.Entry
}

// journalHandle is an implementation of [batchjournal.Journal] that accesses
// journal state within a [JournalStore].
type journalHandle struct {
	store *JournalStore
	name  string
	state *journalState
}

func (h *journalHandle) Append(ctx context.Context, e batchjournal.Entry) error {
	if h.state == nil {
		panic("journal is closed")
	}

	if hook := h.store.BeforeAppend; hook != nil {
		if err := hook(h.name, e); err != nil {
			return unavailable(err)
		}
	}

	e.Payload = slices.Clone(e.Payload)

	h.state.Lock()
	h.state.Staged = append(h.state.Staged, e)
	h.state.Unlock()

	if hook := h.store.AfterAppend; hook != nil {
		if err := hook(h.name, e); err != nil {
			return unavailable(err)
		}
	}

	return ctx.Err()
}

func (h *journalHandle) Flush(ctx context.Context) error {
	if h.state == nil {
		panic("journal is closed")
	}

	if hook := h.store.BeforeFlush; hook != nil {
		if err := hook(h.name); err != nil {
			return unavailable(err)
		}
	}

	h.state.Lock()
	defer h.state.Unlock()

	h.state.Visible = append(h.state.Visible, h.state.Staged...)
	h.state.Staged = nil

	return ctx.Err()
}

func (h *journalHandle) Range(ctx context.Context, fn batchjournal.RangeFunc) error {
	if h.state == nil {
		panic("journal is closed")
	}

	if hook := h.store.BeforeRange; hook != nil {
		if err := hook(h.name); err != nil {
			return unavailable(err)
		}
	}

	h.state.RLock()
	entries := slices.Clone(h.state.Visible)
	h.state.RUnlock()

	for _, e := range entries {
		e.Payload = slices.Clone(e.Payload)

		ok, err := fn(ctx, e)
		if !ok || err != nil {
			return err
		}
	}

	return ctx.Err()
}

func (h *journalHandle) Delete(ctx context.Context, id uuid.UUID) error {
	if h.state == nil {
		panic("journal is closed")
	}

	if hook := h.store.BeforeDelete; hook != nil {
		if err := hook(h.name, id); err != nil {
			return unavailable(err)
		}
	}

	h.state.Lock()
	defer h.state.Unlock()

	h.state.Visible = deleteEntry(h.state.Visible, id)
	h.state.Staged = deleteEntry(h.state.Staged, id)

	return ctx.Err()
}

func (h *journalHandle) Count(ctx context.Context) (uint64, error) {
	if h.state == nil {
		panic("journal is closed")
	}

	h.state.RLock()
	defer h.state.RUnlock()

	return uint64(len(h.state.Visible) + len(h.state.Staged)), ctx.Err()
}

func (h *journalHandle) Close() error {
	if h.state == nil {
		return errors.New("journal is already closed")
	}

	h.state = nil

	return nil
}

func deleteEntry(entries []batchjournal.Entry, id uuid.UUID) []batchjournal.Entry {
	return slices.DeleteFunc(
		entries,
		func(e batchjournal.Entry) bool {
			return e.ID == id
		},
	)
}

// unavailable reports err as a store-level availability failure.
func unavailable(err error) error {
	return fmt.Errorf("%w: %w", batchjournal.ErrUnavailable, err)
}

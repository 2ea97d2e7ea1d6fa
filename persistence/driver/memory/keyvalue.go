package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/dogmatiq/batchlog/persistence/kv"
)

// KeyValueStore is an implementation of [kv.Store] that keeps keyspaces in
// memory.
//
// The hook functions, if non-nil, are invoked as each operation executes,
// allowing tests to inject failures. They are passed the name of the keyspace
// being operated upon.
type KeyValueStore struct {
	keyspaces sync.Map // map[string]*keyspaceState

	BeforeSet func(name string, k, v []byte) error
	AfterSet  func(name string, k, v []byte) error
}

// Open returns the keyspace with the given name.
func (s *KeyValueStore) Open(ctx context.Context, name string) (kv.Keyspace, error) {
	state, ok := s.keyspaces.Load(name)

	if !ok {
		state, _ = s.keyspaces.LoadOrStore(
			name,
			&keyspaceState{},
		)
	}

	return &keyspaceHandle{
		store: s,
		name:  name,
		state: state.(*keyspaceState),
	}, ctx.Err()
}

type keyspaceState struct {
	sync.RWMutex

	Values map[string][]byte
}

type keyspaceHandle struct {
	store *KeyValueStore
	name  string
	state *keyspaceState
}

func (h *keyspaceHandle) Get(ctx context.Context, k []byte) ([]byte, error) {
	if h.state == nil {
		panic("keyspace is closed")
	}

	h.state.RLock()
	defer h.state.RUnlock()

	return slices.Clone(h.state.Values[string(k)]), ctx.Err()
}

func (h *keyspaceHandle) Has(ctx context.Context, k []byte) (bool, error) {
	if h.state == nil {
		panic("keyspace is closed")
	}

	h.state.RLock()
	defer h.state.RUnlock()

	_, ok := h.state.Values[string(k)]
	return ok, ctx.Err()
}

func (h *keyspaceHandle) Set(ctx context.Context, k, v []byte) error {
	if h.state == nil {
		panic("keyspace is closed")
	}

	v = slices.Clone(v)

	if hook := h.store.BeforeSet; hook != nil {
		if err := hook(h.name, k, v); err != nil {
			return err
		}
	}

	h.state.Lock()

	if len(v) == 0 {
		delete(h.state.Values, string(k))
	} else {
		if h.state.Values == nil {
			h.state.Values = map[string][]byte{}
		}

		h.state.Values[string(k)] = v
	}

	h.state.Unlock()

	if hook := h.store.AfterSet; hook != nil {
		if err := hook(h.name, k, v); err != nil {
			return err
		}
	}

	return ctx.Err()
}

func (h *keyspaceHandle) Range(ctx context.Context, fn kv.RangeFunc) error {
	if h.state == nil {
		panic("keyspace is closed")
	}

	h.state.RLock()
	values := maps.Clone(h.state.Values)
	h.state.RUnlock()

	for k, v := range values {
		ok, err := fn(ctx, []byte(k), slices.Clone(v))
		if !ok || err != nil {
			return err
		}
	}

	return nil
}

func (h *keyspaceHandle) Close() error {
	if h.state == nil {
		return errors.New("keyspace is already closed")
	}

	h.state = nil

	return nil
}

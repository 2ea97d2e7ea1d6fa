package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dogmatiq/batchlog/internal/test"
	"github.com/dogmatiq/batchlog/persistence/kv"
	. "github.com/dogmatiq/batchlog/persistence/driver/memory"
)

func TestKeyValueStore(t *testing.T) {
	t.Parallel()

	setup := func(t test.TestingT) (test.Context, *KeyValueStore, kv.Keyspace) {
		tctx := test.WithContext(t)

		store := &KeyValueStore{}

		ks, err := store.Open(tctx, "<keyspace>")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() {
			ks.Close()
		})

		return tctx, store, ks
	}

	t.Run("it stores and retrieves values", func(t *testing.T) {
		t.Parallel()

		tctx, _, ks := setup(t)

		if err := ks.Set(tctx, []byte("<key>"), []byte("<value>")); err != nil {
			t.Fatal(err)
		}

		v, err := ks.Get(tctx, []byte("<key>"))
		if err != nil {
			t.Fatal(err)
		}

		test.Expect(
			t,
			"unexpected value",
			v,
			[]byte("<value>"),
		)

		ok, err := ks.Has(tctx, []byte("<key>"))
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("expected key to exist")
		}
	})

	t.Run("getting an absent key returns an empty value", func(t *testing.T) {
		t.Parallel()

		tctx, _, ks := setup(t)

		v, err := ks.Get(tctx, []byte("<key>"))
		if err != nil {
			t.Fatal(err)
		}

		test.Expect(
			t,
			"unexpected value for absent key",
			v,
			nil,
		)
	})

	t.Run("setting an empty value deletes the key", func(t *testing.T) {
		t.Parallel()

		tctx, _, ks := setup(t)

		if err := ks.Set(tctx, []byte("<key>"), []byte("<value>")); err != nil {
			t.Fatal(err)
		}
		if err := ks.Set(tctx, []byte("<key>"), nil); err != nil {
			t.Fatal(err)
		}

		ok, err := ks.Has(tctx, []byte("<key>"))
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("expected key to have been deleted")
		}
	})

	t.Run("it ranges over all pairs", func(t *testing.T) {
		t.Parallel()

		tctx, _, ks := setup(t)

		want := map[string]string{
			"<key-1>": "<value-1>",
			"<key-2>": "<value-2>",
		}

		for k, v := range want {
			if err := ks.Set(tctx, []byte(k), []byte(v)); err != nil {
				t.Fatal(err)
			}
		}

		got := map[string]string{}
		if err := ks.Range(
			tctx,
			func(_ context.Context, k, v []byte) (bool, error) {
				got[string(k)] = string(v)
				return true, nil
			},
		); err != nil {
			t.Fatal(err)
		}

		test.Expect(
			t,
			"unexpected key/value pairs",
			got,
			want,
		)
	})

	t.Run("hooks can inject failures", func(t *testing.T) {
		t.Parallel()

		tctx, store, ks := setup(t)

		errSet := errors.New("<set error>")
		fail := test.FailOnce(errSet)

		store.BeforeSet = func(name string, _, _ []byte) error {
			if name == "<keyspace>" {
				return fail()
			}
			return nil
		}

		if err := ks.Set(tctx, []byte("<key>"), []byte("<value>")); !errors.Is(err, errSet) {
			t.Fatalf("expected injected set error, got: %v", err)
		}

		if err := ks.Set(tctx, []byte("<key>"), []byte("<value>")); err != nil {
			t.Fatal(err)
		}
	})
}

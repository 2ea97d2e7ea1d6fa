package kvtarget_test

import (
	"testing"

	"github.com/dogmatiq/batchlog/batch"
	. "github.com/dogmatiq/batchlog/internal/kvtarget"
	"github.com/dogmatiq/batchlog/internal/test"
	"github.com/dogmatiq/batchlog/persistence/driver/memory"
)

func TestApplier(t *testing.T) {
	t.Parallel()

	t.Run("it merges column updates into the target row", func(t *testing.T) {
		t.Parallel()

		tctx := test.WithContext(t)

		store := &memory.KeyValueStore{}
		applier := &Applier{Keyspaces: store}

		if err := applier.Apply(
			tctx,
			[]batch.Mutation{
				{
					Table: "ks.cf",
					Key:   []byte("pk"),
					Columns: []batch.Column{
						{Name: []byte("a"), Value: []byte("1")},
						{Name: []byte("b"), Value: []byte("2")},
					},
				},
				{
					Table: "ks.cf",
					Key:   []byte("pk"),
					Columns: []batch.Column{
						{Name: []byte("b"), Value: []byte("3")},
					},
				},
			},
		); err != nil {
			t.Fatal(err)
		}

		row, ok, err := Row(tctx, store, "ks.cf", []byte("pk"))
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("expected the row to exist")
		}

		test.Expect(
			t,
			"unexpected row contents",
			row,
			map[string][]byte{
				"a": []byte("1"),
				"b": []byte("3"),
			},
		)
	})

	t.Run("rows in different tables are independent", func(t *testing.T) {
		t.Parallel()

		tctx := test.WithContext(t)

		store := &memory.KeyValueStore{}
		applier := &Applier{Keyspaces: store}

		if err := applier.Apply(
			tctx,
			[]batch.Mutation{
				{
					Table: "ks.cf1",
					Key:   []byte("pk"),
					Columns: []batch.Column{
						{Name: []byte("a"), Value: []byte("1")},
					},
				},
			},
		); err != nil {
			t.Fatal(err)
		}

		_, ok, err := Row(tctx, store, "ks.cf2", []byte("pk"))
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("did not expect a row in an unrelated table")
		}
	})

	t.Run("re-applying a mutation is idempotent", func(t *testing.T) {
		t.Parallel()

		tctx := test.WithContext(t)

		store := &memory.KeyValueStore{}
		applier := &Applier{Keyspaces: store}

		mutations := []batch.Mutation{
			{
				Table: "ks.cf",
				Key:   []byte("pk"),
				Columns: []batch.Column{
					{Name: []byte("a"), Value: []byte("1")},
				},
			},
		}

		if err := applier.Apply(tctx, mutations); err != nil {
			t.Fatal(err)
		}
		if err := applier.Apply(tctx, mutations); err != nil {
			t.Fatal(err)
		}

		row, _, err := Row(tctx, store, "ks.cf", []byte("pk"))
		if err != nil {
			t.Fatal(err)
		}

		test.Expect(
			t,
			"unexpected row contents",
			row,
			map[string][]byte{
				"a": []byte("1"),
			},
		)
	})
}

package truncation_test

import (
	"testing"

	"github.com/dogmatiq/batchlog/internal/test"
	. "github.com/dogmatiq/batchlog/internal/truncation"
	"github.com/dogmatiq/batchlog/persistence/driver/memory"
	"github.com/dogmatiq/batchlog/persistence/kv"
)

func TestKeyspaceOracle(t *testing.T) {
	t.Parallel()

	setup := func(t test.TestingT) (test.Context, kv.Keyspace, *KeyspaceOracle) {
		tctx := test.WithContext(t)

		store := &memory.KeyValueStore{}

		ks, err := store.Open(tctx, "truncation-records")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() {
			ks.Close()
		})

		return tctx, ks, &KeyspaceOracle{Keyspace: ks}
	}

	t.Run("a table with no record has no boundary", func(t *testing.T) {
		t.Parallel()

		tctx, _, oracle := setup(t)

		_, ok, err := oracle.Boundary(tctx, "ks.cf")
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("expected no truncation boundary")
		}
	})

	t.Run("a recorded truncation is reported as the boundary", func(t *testing.T) {
		t.Parallel()

		tctx, ks, oracle := setup(t)

		if err := Save(
			tctx,
			ks,
			"ks.cf",
			Record{
				TruncatedAt:      1500,
				RecoveryPosition: 42,
			},
		); err != nil {
			t.Fatal(err)
		}

		boundary, ok, err := oracle.Boundary(tctx, "ks.cf")
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("expected a truncation boundary")
		}

		test.Expect(
			t,
			"unexpected truncation boundary",
			boundary,
			int64(1500),
		)
	})

	t.Run("records are keyed per table", func(t *testing.T) {
		t.Parallel()

		tctx, ks, oracle := setup(t)

		if err := Save(
			tctx,
			ks,
			"ks.cf1",
			Record{TruncatedAt: 1500},
		); err != nil {
			t.Fatal(err)
		}

		_, ok, err := oracle.Boundary(tctx, "ks.cf2")
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("expected no truncation boundary for an untruncated table")
		}
	})

	t.Run("a newer record replaces the boundary", func(t *testing.T) {
		t.Parallel()

		tctx, ks, oracle := setup(t)

		if err := Save(tctx, ks, "ks.cf", Record{TruncatedAt: 1500}); err != nil {
			t.Fatal(err)
		}
		if err := Save(tctx, ks, "ks.cf", Record{TruncatedAt: 2500}); err != nil {
			t.Fatal(err)
		}

		boundary, ok, err := oracle.Boundary(tctx, "ks.cf")
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("expected a truncation boundary")
		}

		test.Expect(
			t,
			"unexpected truncation boundary",
			boundary,
			int64(2500),
		)
	})
}

package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dogmatiq/batchlog/internal/test"
	"github.com/dogmatiq/batchlog/persistence/batchjournal"
	. "github.com/dogmatiq/batchlog/persistence/driver/memory"
	"github.com/google/uuid"
)

func TestJournalStore(t *testing.T) {
	t.Parallel()

	setup := func(t test.TestingT) (test.Context, *JournalStore, batchjournal.Journal) {
		tctx := test.WithContext(t)

		store := &JournalStore{}

		j, err := store.Open(tctx, "<journal>")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() {
			j.Close()
		})

		return tctx, store, j
	}

	entry := func(writtenAt int64) batchjournal.Entry {
		return batchjournal.Entry{
			ID:        uuid.New(),
			WrittenAt: writtenAt,
			Payload:   []byte("<payload>"),
		}
	}

	rangeAll := func(
		t test.TestingT,
		tctx test.Context,
		j batchjournal.Journal,
	) []batchjournal.Entry {
		t.Helper()

		var entries []batchjournal.Entry

		if err := j.Range(
			tctx,
			func(_ context.Context, e batchjournal.Entry) (bool, error) {
				entries = append(entries, e)
				return true, nil
			},
		); err != nil {
			t.Fatal(err)
		}

		return entries
	}

	t.Run("appended entries are not visible until the journal is flushed", func(t *testing.T) {
		t.Parallel()

		tctx, _, j := setup(t)

		e := entry(100)
		if err := j.Append(tctx, e); err != nil {
			t.Fatal(err)
		}

		test.Expect(
			t,
			"unexpected entries visible before flush",
			rangeAll(t, tctx, j),
			nil,
		)

		if err := j.Flush(tctx); err != nil {
			t.Fatal(err)
		}

		test.Expect(
			t,
			"unexpected entries visible after flush",
			rangeAll(t, tctx, j),
			[]batchjournal.Entry{e},
		)
	})

	t.Run("staged entries are included in the count", func(t *testing.T) {
		t.Parallel()

		tctx, _, j := setup(t)

		if err := j.Append(tctx, entry(100)); err != nil {
			t.Fatal(err)
		}
		if err := j.Flush(tctx); err != nil {
			t.Fatal(err)
		}
		if err := j.Append(tctx, entry(200)); err != nil {
			t.Fatal(err)
		}

		n, err := j.Count(tctx)
		if err != nil {
			t.Fatal(err)
		}

		test.Expect(
			t,
			"unexpected entry count",
			n,
			uint64(2),
		)
	})

	t.Run("entries survive flushing multiple times", func(t *testing.T) {
		t.Parallel()

		tctx, _, j := setup(t)

		e := entry(100)
		if err := j.Append(tctx, e); err != nil {
			t.Fatal(err)
		}
		if err := j.Flush(tctx); err != nil {
			t.Fatal(err)
		}
		if err := j.Flush(tctx); err != nil {
			t.Fatal(err)
		}

		test.Expect(
			t,
			"unexpected entries after repeated flushes",
			rangeAll(t, tctx, j),
			[]batchjournal.Entry{e},
		)
	})

	t.Run("deletion removes both staged and visible entries", func(t *testing.T) {
		t.Parallel()

		tctx, _, j := setup(t)

		visible := entry(100)
		if err := j.Append(tctx, visible); err != nil {
			t.Fatal(err)
		}
		if err := j.Flush(tctx); err != nil {
			t.Fatal(err)
		}

		staged := entry(200)
		if err := j.Append(tctx, staged); err != nil {
			t.Fatal(err)
		}

		if err := j.Delete(tctx, visible.ID); err != nil {
			t.Fatal(err)
		}
		if err := j.Delete(tctx, staged.ID); err != nil {
			t.Fatal(err)
		}
		if err := j.Flush(tctx); err != nil {
			t.Fatal(err)
		}

		test.Expect(
			t,
			"unexpected entries after deletion",
			rangeAll(t, tctx, j),
			nil,
		)
	})

	t.Run("deletion of an absent entry is a no-op", func(t *testing.T) {
		t.Parallel()

		tctx, _, j := setup(t)

		e := entry(100)
		if err := j.Append(tctx, e); err != nil {
			t.Fatal(err)
		}
		if err := j.Flush(tctx); err != nil {
			t.Fatal(err)
		}

		if err := j.Delete(tctx, uuid.New()); err != nil {
			t.Fatal(err)
		}

		test.Expect(
			t,
			"unexpected entries after deleting an absent ID",
			rangeAll(t, tctx, j),
			[]batchjournal.Entry{e},
		)
	})

	t.Run("ranging does not observe entries appended mid-scan", func(t *testing.T) {
		t.Parallel()

		tctx, _, j := setup(t)

		if err := j.Append(tctx, entry(100)); err != nil {
			t.Fatal(err)
		}
		if err := j.Flush(tctx); err != nil {
			t.Fatal(err)
		}

		var n int
		if err := j.Range(
			tctx,
			func(ctx context.Context, _ batchjournal.Entry) (bool, error) {
				n++

				if err := j.Append(ctx, entry(200)); err != nil {
					return false, err
				}
				return true, j.Flush(ctx)
			},
		); err != nil {
			t.Fatal(err)
		}

		test.Expect(
			t,
			"scan observed entries appended after it began",
			n,
			1,
		)
	})

	t.Run("hooks can inject failures", func(t *testing.T) {
		t.Parallel()

		tctx, store, j := setup(t)

		errFlush := errors.New("<flush error>")
		test.FailOnJournalFlush(store, "<journal>", errFlush)

		err := j.Flush(tctx)
		if !errors.Is(err, errFlush) {
			t.Fatalf("expected injected flush error, got: %v", err)
		}
		if !errors.Is(err, batchjournal.ErrUnavailable) {
			t.Fatalf("expected the failure to be reported as unavailability, got: %v", err)
		}

		// The failure is injected once; the next flush succeeds.
		if err := j.Flush(tctx); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("journals with different names are isolated", func(t *testing.T) {
		t.Parallel()

		tctx, store, j := setup(t)

		other, err := store.Open(tctx, "<other>")
		if err != nil {
			t.Fatal(err)
		}
		defer other.Close()

		if err := j.Append(tctx, entry(100)); err != nil {
			t.Fatal(err)
		}
		if err := j.Flush(tctx); err != nil {
			t.Fatal(err)
		}

		n, err := other.Count(tctx)
		if err != nil {
			t.Fatal(err)
		}

		test.Expect(
			t,
			"unexpected entry count in unrelated journal",
			n,
			uint64(0),
		)
	})
}

package test

import (
	"github.com/dogmatiq/batchlog/persistence/batchjournal"
	"github.com/dogmatiq/batchlog/persistence/driver/memory"
)

// FailOnJournalFlush configures the journal with the given name to return an
// error on the next call to Flush().
func FailOnJournalFlush(
	s *memory.JournalStore,
	name string,
	err error,
) {
	fail := FailOnce(err)

	s.BeforeFlush = func(n string) error {
		if n == name {
			return fail()
		}
		return nil
	}
}

// FailOnJournalRange configures the journal with the given name to return an
// error on the next call to Range().
func FailOnJournalRange(
	s *memory.JournalStore,
	name string,
	err error,
) {
	fail := FailOnce(err)

	s.BeforeRange = func(n string) error {
		if n == name {
			return fail()
		}
		return nil
	}
}

// FailBeforeJournalAppend configures the journal with the given name to
// return an error on the next call to Append() with an entry that satisfies
// the given predicate function.
//
// The error is returned before the append is actually performed.
func FailBeforeJournalAppend(
	s *memory.JournalStore,
	name string,
	pred func(batchjournal.Entry) bool,
	err error,
) {
	fail := FailOnce(err)

	s.BeforeAppend = func(n string, e batchjournal.Entry) error {
		if n != name {
			return nil
		}

		if pred(e) {
			return fail()
		}

		return nil
	}
}

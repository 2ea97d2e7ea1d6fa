package test

import (
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Expect compares two values and fails the test if they are different.
func Expect[T any](
	t FailerT,
	failMessage string,
	got, want T,
) {
	t.Helper()

	if diff := cmp.Diff(
		want,
		got,
		cmpopts.EquateEmpty(),
		cmpopts.EquateErrors(),
	); diff != "" {
		t.Log(failMessage)
		t.Fatal(diff)
	}
}

// ExpectChannelToBlockForDuration expects reading from the channel to block
// until the given duration elapses.
func ExpectChannelToBlockForDuration[T any](
	t FailerT,
	d time.Duration,
	ch <-chan T,
) {
	t.Helper()

	select {
	case <-time.After(d):
		// success! duration elapsed without receiving a value
	case got, ok := <-ch:
		if ok {
			t.Errorf("channel received a value while expecting channel to block: %v", got)
		} else {
			t.Error("channel closed while expecting channel to block")
		}
	}
}

package signaling_test

import (
	"testing"
	"time"

	. "github.com/dogmatiq/batchlog/internal/signaling"
	"github.com/dogmatiq/batchlog/internal/test"
)

func TestLatch(t *testing.T) {
	t.Parallel()

	t.Run("it blocks until signaled", func(t *testing.T) {
		t.Parallel()

		var l Latch

		test.ExpectChannelToBlockForDuration(
			t,
			10*time.Millisecond,
			l.Signaled(),
		)

		l.Signal()

		select {
		case <-l.Signaled():
		default:
			t.Fatal("expected latch to be signaled")
		}
	})

	t.Run("signaling is idempotent", func(t *testing.T) {
		t.Parallel()

		var l Latch

		l.Signal()
		l.Signal()

		select {
		case <-l.Signaled():
		default:
			t.Fatal("expected latch to be signaled")
		}
	})
}

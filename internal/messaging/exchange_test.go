package messaging_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/dogmatiq/batchlog/internal/messaging"
	"github.com/dogmatiq/batchlog/internal/test"
)

func TestExchangeQueue(t *testing.T) {
	t.Parallel()

	t.Run("it delivers the response to the requester", func(t *testing.T) {
		t.Parallel()

		tctx := test.WithContext(t)

		var queue ExchangeQueue[string, string]

		test.
			RunInBackground(
				t,
				func(ctx context.Context) error {
					for {
						select {
						case <-ctx.Done():
							return ctx.Err()
						case ex := <-queue.Recv():
							ex.Ok("<response to " + ex.Request + ">")
						}
					}
				},
			).
			UntilTestEnds()

		res, err := queue.Exchange(tctx, "<request>")
		if err != nil {
			t.Fatal(err)
		}

		test.Expect(
			t,
			"unexpected response",
			res,
			"<response to <request>>",
		)
	})

	t.Run("it delivers an error to the requester", func(t *testing.T) {
		t.Parallel()

		tctx := test.WithContext(t)

		var queue ExchangeQueue[string, string]

		errFailed := errors.New("<error>")

		test.
			RunInBackground(
				t,
				func(ctx context.Context) error {
					for {
						select {
						case <-ctx.Done():
							return ctx.Err()
						case ex := <-queue.Recv():
							ex.Err(errFailed)
						}
					}
				},
			).
			UntilTestEnds()

		if _, err := queue.Exchange(tctx, "<request>"); !errors.Is(err, errFailed) {
			t.Fatalf("expected the handler's error, got: %v", err)
		}
	})

	t.Run("it returns the context error if the request is never serviced", func(t *testing.T) {
		t.Parallel()

		tctx := test.WithContext(t)

		ctx, cancel := context.WithCancel(tctx)
		cancel()

		var queue ExchangeQueue[string, string]

		if _, err := queue.Exchange(ctx, "<request>"); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected a context error, got: %v", err)
		}
	})
}

package test

import (
	"context"
	"time"
)

// defaultTestTimeout is the amount of time a test is allowed to run before its
// context is canceled.
const defaultTestTimeout = 10 * time.Second

// Context is a [TestingT] that is also a [context.Context] that is canceled
// when the test ends.
type Context struct {
	TestingT
	context.Context
}

// WithContext binds a deadline context to t.
func WithContext(t TestingT) Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	t.Cleanup(cancel)

	return Context{t, ctx}
}

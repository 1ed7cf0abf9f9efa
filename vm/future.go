package vm

import (
	"context"
	"sync"
)

// Future is the placeholder for the result of a cross-context request.
// It completes exactly once, either with values or with an exception.
// Futures are safe for concurrent use.
type Future struct {
	mu        sync.Mutex
	done      bool
	values    []Value
	exception *Object
	cause     error // engine failure behind the exception, if any
	waiters   []func()
	ch        chan struct{}
}

// NewFuture creates a pending future.
func NewFuture() *Future {
	return &Future{ch: make(chan struct{})}
}

func (*Future) cell() {}

func (fu *Future) Kind() Kind { return KindFuture }

func (fu *Future) String() string {
	fu.mu.Lock()
	defer fu.mu.Unlock()
	switch {
	case !fu.done:
		return "Future<pending>"
	case fu.exception != nil:
		return "Future<failed: " + fu.exception.String() + ">"
	}
	return "Future<" + formatElements("", "", fu.values) + ">"
}

// Complete resolves the future with values. Completing twice is a no-op.
func (fu *Future) Complete(values ...Value) {
	fu.finish(values, nil, nil)
}

// Fail resolves the future with an exception.
func (fu *Future) Fail(ex *Object) {
	fu.finish(nil, ex, nil)
}

// failWith resolves the future with an exception caused by an engine error.
func (fu *Future) failWith(ex *Object, cause error) {
	fu.finish(nil, ex, cause)
}

func (fu *Future) finish(values []Value, ex *Object, cause error) {
	fu.mu.Lock()
	if fu.done {
		fu.mu.Unlock()
		return
	}
	fu.done = true
	fu.values = values
	fu.exception = ex
	fu.cause = cause
	waiters := fu.waiters
	fu.waiters = nil
	close(fu.ch)
	fu.mu.Unlock()

	for _, w := range waiters {
		w()
	}
}

// OnDone registers fn to run once the future resolves. If it already has,
// fn runs immediately on the calling goroutine.
func (fu *Future) OnDone(fn func()) {
	fu.mu.Lock()
	if !fu.done {
		fu.waiters = append(fu.waiters, fn)
		fu.mu.Unlock()
		return
	}
	fu.mu.Unlock()
	fn()
}

// Done returns a channel closed when the future resolves.
func (fu *Future) Done() <-chan struct{} { return fu.ch }

// IsDone reports whether the future has resolved.
func (fu *Future) IsDone() bool {
	fu.mu.Lock()
	defer fu.mu.Unlock()
	return fu.done
}

// Poll returns the outcome without blocking. done is false while pending.
func (fu *Future) Poll() (values []Value, ex *Object, done bool) {
	fu.mu.Lock()
	defer fu.mu.Unlock()
	return fu.values, fu.exception, fu.done
}

// Value returns the first result, or Null.
func (fu *Future) Value() Value {
	values, _, _ := fu.Poll()
	if len(values) == 0 || values[0] == nil {
		return Null
	}
	return values[0]
}

// Wait blocks until the future resolves or ctx is done.
func (fu *Future) Wait(ctx context.Context) ([]Value, error) {
	select {
	case <-fu.ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return fu.result()
}

// result converts a resolved future into Go results.
func (fu *Future) result() ([]Value, error) {
	fu.mu.Lock()
	defer fu.mu.Unlock()
	if fu.cause != nil {
		return nil, fu.cause
	}
	if fu.exception != nil {
		return nil, &UncaughtError{Exception: fu.exception, Origin: fu.exception.origin}
	}
	return fu.values, nil
}

package sched

import (
	"context"
	"sync"
)

// Future holds a single value that is set at most once and read any
// number of times. It is the Go counterpart of the original's
// capacity-1 reply queue: a request/reply Future is deliberately
// request-then-block rather than callback-based, matching how the
// rest of respire's graph nodes are written (FileInfoNode.GetFileInfo
// returns a Future the caller blocks on).
type Future[R any] struct {
	once sync.Once
	done chan struct{}
	val  R
	err  error
}

// NewFuture returns an unresolved Future.
func NewFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

// Resolved returns an already-resolved Future wrapping v and err, for
// call sites that have a value in hand and don't need to hop through a
// consumer (the original's "Future is either a value or a future"
// variant).
func Resolved[R any](v R, err error) *Future[R] {
	f := NewFuture[R]()
	f.Set(v, err)
	return f
}

// Set resolves f to (v, err). Only the first call has any effect;
// subsequent calls are silently ignored, matching the original
// Future's single-assignment semantics.
func (f *Future[R]) Set(v R, err error) {
	f.once.Do(func() {
		f.val = v
		f.err = err
		close(f.done)
	})
}

// Get blocks until f is resolved, or ctx is canceled, whichever comes
// first.
func (f *Future[R]) Get(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

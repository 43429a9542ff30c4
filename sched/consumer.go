package sched

import (
	"context"
	"sync"
)

// PushPullConsumer serializes a stream of requests through a single
// process function, replying to each through a Future. At most one
// drain goroutine is ever active per consumer: pushing a request when
// the consumer is idle starts a drain goroutine, which processes
// requests one at a time until none remain, then exits; a subsequent
// Push restarts it.
//
// It is grounded on the original's EbbQueue/EbbConsumer pairing: a
// consumer attached to a queue is spawned to drain it exactly once
// whenever a push transitions the queue from empty to non-empty, and
// never more than one drain task runs concurrently. This is the shape
// every respire node type uses to answer concurrent requests for the
// same underlying (and possibly still-being-computed) result: the
// registry node and the file-process node are each, structurally, a
// PushPullConsumer wrapping their own process function.
type PushPullConsumer[U any, R any] struct {
	process func(context.Context, U) (R, error)

	mu       sync.Mutex
	pending  []pushPullRequest[U, R]
	draining bool
}

type pushPullRequest[U any, R any] struct {
	arg    U
	future *Future[R]
}

// NewPushPullConsumer returns a PushPullConsumer that answers each
// pushed request by calling process.
func NewPushPullConsumer[U any, R any](process func(context.Context, U) (R, error)) *PushPullConsumer[U, R] {
	return &PushPullConsumer[U, R]{process: process}
}

// Push submits arg for processing and returns a Future for its reply.
// Push never blocks. If this call starts a new drain goroutine, ctx is
// the context passed to process for every request that goroutine
// drains; a Push that finds a drain already running does not use its
// ctx at all, matching the single-drain-goroutine invariant above.
func (c *PushPullConsumer[U, R]) Push(ctx context.Context, arg U) *Future[R] {
	future := NewFuture[R]()
	c.mu.Lock()
	c.pending = append(c.pending, pushPullRequest[U, R]{arg, future})
	startDrain := !c.draining
	if startDrain {
		c.draining = true
	}
	c.mu.Unlock()
	if startDrain {
		go c.drain(ctx)
	}
	return future
}

func (c *PushPullConsumer[U, R]) drain(ctx context.Context) {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.draining = false
			c.mu.Unlock()
			return
		}
		req := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		v, err := c.process(ctx, req.arg)
		req.future.Set(v, err)
	}
}

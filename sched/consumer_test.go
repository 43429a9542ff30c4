package sched_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/grailbio/respire/sched"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPullConsumerSerializesRequests(t *testing.T) {
	var concurrent, maxConcurrent int32
	c := sched.NewPushPullConsumer(func(ctx context.Context, n int) (int, error) {
		cur := atomic.AddInt32(&concurrent, 1)
		for {
			m := atomic.LoadInt32(&maxConcurrent)
			if cur <= m || atomic.CompareAndSwapInt32(&maxConcurrent, m, cur) {
				break
			}
		}
		atomic.AddInt32(&concurrent, -1)
		return n * 2, nil
	})

	ctx := context.Background()
	var futures []*sched.Future[int]
	for i := 0; i < 20; i++ {
		futures = append(futures, c.Push(ctx, i))
	}
	for i, f := range futures {
		v, err := f.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, i*2, v)
	}
	assert.EqualValues(t, 1, maxConcurrent)
}

func TestPushPullConsumerRestartsDrain(t *testing.T) {
	var calls int32
	c := sched.NewPushPullConsumer(func(ctx context.Context, n int) (int, error) {
		atomic.AddInt32(&calls, 1)
		return n, nil
	})
	ctx := context.Background()

	f1 := c.Push(ctx, 1)
	v, err := f1.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// The drain goroutine from the first Push has exited by now (no more
	// pending requests); a second Push must start a fresh one.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f2 := c.Push(ctx, 2)
		v2, err2 := f2.Get(ctx)
		require.NoError(t, err2)
		assert.Equal(t, 2, v2)
	}()
	wg.Wait()
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

package executor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xtaci/kcpcore/internal/engine"
)

func TestSingleRunsTasksInSubmitOrder(t *testing.T) {
	pool := NewPool(0)
	e := pool.Acquire()
	defer pool.Shutdown()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, e.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}))
	}
	wg.Wait()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestStopRejectsFurtherSubmits(t *testing.T) {
	pool := NewPool(0)
	e := pool.Acquire()

	e.Stop()
	require.False(t, e.IsActive())
	err := e.Submit(func() {})
	require.ErrorIs(t, err, engine.ErrExecutorRejected{})
}

func TestStopDrainsAlreadyQueuedTasks(t *testing.T) {
	pool := NewPool(0)
	e := pool.Acquire().(*Single)

	done := make(chan struct{})
	require.NoError(t, e.Submit(func() { close(done) }))
	e.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queued task never ran before shutdown")
	}
	e.Wait()
}

func TestPoolAcquireGivesEachSessionItsOwnGoroutine(t *testing.T) {
	pool := NewPool(0)
	e1 := pool.Acquire()
	e2 := pool.Acquire()
	require.NotSame(t, e1, e2)

	done1 := make(chan struct{})
	block := make(chan struct{})
	require.NoError(t, e1.Submit(func() { <-block }))
	require.NoError(t, e2.Submit(func() { close(done1) }))

	select {
	case <-done1:
	case <-time.After(time.Second):
		t.Fatal("second executor was blocked by first executor's task")
	}
	close(block)
	require.NoError(t, pool.Shutdown())
}

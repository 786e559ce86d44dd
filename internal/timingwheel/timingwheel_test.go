package timingwheel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduleFiresAfterDelay(t *testing.T) {
	w := New()
	defer w.Close()

	done := make(chan struct{})
	start := time.Now()
	w.Schedule(func() { close(done) }, 30*time.Millisecond)

	select {
	case <-done:
		require.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("task never fired")
	}
}

func TestScheduleOrdersByDeadline(t *testing.T) {
	w := New()
	defer w.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)

	record := func(n int) func() {
		return func() {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			wg.Done()
		}
	}

	w.Schedule(record(3), 60*time.Millisecond)
	w.Schedule(record(1), 10*time.Millisecond)
	w.Schedule(record(2), 30*time.Millisecond)

	wg.Wait()
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestScheduleImmediateRunsPromptly(t *testing.T) {
	w := New()
	defer w.Close()

	done := make(chan struct{})
	w.Schedule(func() { close(done) }, 0)

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("zero-delay task never fired")
	}
}

func TestCloseStopsBackgroundGoroutines(t *testing.T) {
	w := New()
	w.Close()
	require.NotPanics(t, func() { w.Close() })
}

package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreBoundsConcurrency(t *testing.T) {
	sem := NewSemaphore(3)
	var (
		mu      sync.Mutex
		current int
		peak    int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, sem.Acquire(context.Background()))
			defer sem.Release()

			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak, 3)
	assert.Greater(t, peak, 0)
}

func TestSemaphoreFIFOOrder(t *testing.T) {
	sem := NewSemaphore(1)
	require.NoError(t, sem.Acquire(context.Background()))

	const waiters = 5
	order := make(chan int, waiters)
	started := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-started
			// Stagger arrivals so the queue order is deterministic.
			time.Sleep(time.Duration(i*10) * time.Millisecond)
			require.NoError(t, sem.Acquire(context.Background()))
			order <- i
			sem.Release()
		}(i)
	}
	close(started)
	// Let every waiter enqueue before freeing the permit.
	time.Sleep(100 * time.Millisecond)
	sem.Release()
	wg.Wait()
	close(order)

	var got []int
	for i := range order {
		got = append(got, i)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got, "waiters should acquire in arrival order")
}

func TestSemaphoreAcquireCancellation(t *testing.T) {
	sem := NewSemaphore(1)
	require.NoError(t, sem.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sem.Acquire(ctx)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled Acquire did not return")
	}

	// The permit must still be usable after the cancelled waiter left.
	sem.Release()
	require.NoError(t, sem.Acquire(context.Background()))
	sem.Release()
}

func TestSemaphoreClampsCapacity(t *testing.T) {
	sem := NewSemaphore(0)
	require.NoError(t, sem.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, sem.Acquire(ctx), "capacity 0 clamps to 1, second acquire must block")
}

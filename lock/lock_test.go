package lock

import (
	"sync"
	"testing"
	"time"
)

func TestMutualExclusion(t *testing.T) {
	m := NewManager()

	const workers = 32
	var inside, peak int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := m.Acquire("boris")
			defer release()

			mu.Lock()
			inside++
			if inside > peak {
				peak = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if peak != 1 {
		t.Fatalf("critical section admitted %d holders at once", peak)
	}
}

func TestFIFOOrder(t *testing.T) {
	m := NewManager()

	hold := m.Acquire("boris")

	const waiters = 8
	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			release := m.Acquire("boris")
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			release()
		}(i)
		// Stagger so the queue forms in index order.
		time.Sleep(10 * time.Millisecond)
	}

	hold()
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("waiters admitted out of order: %v", order)
		}
	}
}

func TestIndependentKeysDoNotBlock(t *testing.T) {
	m := NewManager()

	release := m.Acquire("boris")
	defer release()

	done := make(chan struct{})
	go func() {
		other := m.Acquire("zebby")
		other()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unrelated key blocked behind held lock")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := NewManager()

	release := m.Acquire("boris")
	release()
	release()

	// A double release must not admit two holders or corrupt the queue.
	again := m.Acquire("boris")
	again()
}

func TestQueueRemovedWhenIdle(t *testing.T) {
	m := NewManager()

	release := m.Acquire("boris")
	release()

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queues) != 0 {
		t.Fatalf("idle manager still holds %d queues", len(m.queues))
	}
}

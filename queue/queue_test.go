package queue

import (
	"sync"
	"testing"
	"time"
)

func TestPushPopFIFO(t *testing.T) {
	q := New[int](4)
	for i := 0; i < 4; i++ {
		q.Push(i)
	}
	for i := 0; i < 4; i++ {
		v, ok := q.Pop()
		if !ok || v != i {
			t.Fatalf("Pop() = %v, %v; want %v, true", v, ok, i)
		}
	}
}

func TestPopOnClosedEmptyReturnsEOS(t *testing.T) {
	q := New[int](2)
	q.Close()
	if _, ok := q.Pop(); ok {
		t.Error("Pop on closed empty queue should return ok == false")
	}
}

func TestPopDrainsBeforeClosedSignal(t *testing.T) {
	q := New[int](4)
	q.Push(1)
	q.Push(2)
	q.Close()
	for _, want := range []int{1, 2} {
		v, ok := q.Pop()
		if !ok || v != want {
			t.Fatalf("Pop() = %v, %v; want %v, true", v, ok, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("queue should be drained and closed")
	}
}

func TestPushBlocksOnFullQueue(t *testing.T) {
	q := New[int](1)
	q.Push(1)

	done := make(chan struct{})
	go func() {
		q.Push(2)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Push should have blocked on a full queue")
	case <-time.After(20 * time.Millisecond):
	}

	if v, _ := q.Pop(); v != 1 {
		t.Fatalf("Pop() = %v, want 1", v)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push did not unblock after a Pop freed capacity")
	}
}

// Back-pressure property: with a slow consumer and a fast producer,
// the queue never holds more than its capacity.
func TestBackPressureNeverExceedsCapacity(t *testing.T) {
	const capacity = 8
	q := New[int](capacity)
	var wg sync.WaitGroup
	var maxSeen int
	var mu sync.Mutex

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5000; i++ {
			q.Push(i)
			mu.Lock()
			if s := q.Size(); s > maxSeen {
				maxSeen = s
			}
			mu.Unlock()
		}
		q.Close()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			if _, ok := q.Pop(); !ok {
				return
			}
		}
	}()

	wg.Wait()
	if maxSeen > capacity {
		t.Errorf("queue exceeded capacity: saw %d, capacity %d", maxSeen, capacity)
	}
}

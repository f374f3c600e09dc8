package workerpool

import (
	"sync/atomic"
	"testing"
)

func TestSubmitWaitIdle(t *testing.T) {
	p := New(4)
	defer p.Close()

	var n atomic.Int64
	for i := 0; i < 100; i++ {
		p.Submit(func() { n.Add(1) })
	}
	p.WaitIdle()

	if got := n.Load(); got != 100 {
		t.Fatalf("n = %d, want 100", got)
	}
}

func TestWaitIdleMultipleRounds(t *testing.T) {
	p := New(2)
	defer p.Close()

	var n atomic.Int64
	for round := 0; round < 3; round++ {
		for i := 0; i < 10; i++ {
			p.Submit(func() { n.Add(1) })
		}
		p.WaitIdle()
		if got := n.Load(); got != int64((round+1)*10) {
			t.Fatalf("round %d: n = %d, want %d", round, got, (round+1)*10)
		}
	}
}

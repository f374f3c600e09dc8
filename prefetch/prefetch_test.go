package prefetch

import (
	"errors"
	"io"
	"sync"
	"time"

	"testing"

	"github.com/readflow/engine/record"
)

// sliceSource replays a fixed slice of records, then io.EOF, or a
// forced error at a given index.
type sliceSource struct {
	mu      sync.Mutex
	recs    []*record.Record
	i       int
	failAt  int // -1 disables
	failErr error
}

func (s *sliceSource) ReadNext() (*record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt >= 0 && s.i == s.failAt {
		return nil, s.failErr
	}
	if s.i >= len(s.recs) {
		return nil, io.EOF
	}
	r := s.recs[s.i]
	s.i++
	return r, nil
}

func makeRecords(n int) []*record.Record {
	recs := make([]*record.Record, n)
	for i := range recs {
		recs[i] = &record.Record{Name: string(rune('a' + i%26))}
	}
	return recs
}

// Property 6: reader.Next() with prefetch enabled returns the
// identical sequence as with prefetch disabled for any input.
func TestPrefetchEquivalence(t *testing.T) {
	input := makeRecords(500)

	seq := func(mt bool) []string {
		src := &sliceSource{recs: input, failAt: -1}
		r := NewReader(src, mt, 64)
		var got []string
		for {
			rec, err := r.Next()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec == nil {
				break
			}
			got = append(got, rec.Name)
		}
		return got
	}

	single := seq(false)
	multi := seq(true)
	if len(single) != len(multi) {
		t.Fatalf("length mismatch: single=%d multi=%d", len(single), len(multi))
	}
	for i := range single {
		if single[i] != multi[i] {
			t.Fatalf("mismatch at %d: single=%q multi=%q", i, single[i], multi[i])
		}
	}
}

func TestPrefetchSurfacesCodecError(t *testing.T) {
	wantErr := errors.New("boom")
	src := &sliceSource{recs: makeRecords(10), failAt: 5, failErr: wantErr}
	r := NewReader(src, true, 4)
	count := 0
	for {
		rec, err := r.Next()
		if err != nil {
			if !errors.Is(err, wantErr) {
				t.Fatalf("got error %v, want wrapping %v", err, wantErr)
			}
			return
		}
		if rec == nil {
			t.Fatal("stream ended cleanly, expected an error")
		}
		count++
	}
}

func TestPrefetchStopDoesNotDeadlock(t *testing.T) {
	src := &sliceSource{recs: makeRecords(10000), failAt: -1}
	r := NewReader(src, true, 8)
	// Pop a few, then stop without draining the rest: Stop must
	// return even though the background worker may be blocked
	// pushing into a full queue.
	for i := 0; i < 3; i++ {
		if _, err := r.Next(); err != nil {
			t.Fatal(err)
		}
	}
	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return: worker likely deadlocked on a full queue")
	}
}

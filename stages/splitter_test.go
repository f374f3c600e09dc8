package stages

import (
	"io"
	"sync"
	"testing"

	"github.com/readflow/engine/record"
	"github.com/readflow/engine/stage"
)

func sourceOf(recs []*record.Record) *stage.SourceFunc {
	i := 0
	return stage.NewSource(func() (*record.Record, error) {
		if i >= len(recs) {
			return nil, io.EOF
		}
		r := recs[i]
		i++
		return r, nil
	}, record.NewHeader())
}

type collector struct {
	mu   sync.Mutex
	recs []*record.Record
}

func (c *collector) sink() *stage.SinkFunc {
	return stage.NewSink(16, func(rec *record.Record) error {
		c.mu.Lock()
		c.recs = append(c.recs, rec)
		c.mu.Unlock()
		return nil
	}, nil)
}

// Splitter must route each record to the branch ByReferenceID picks,
// preserving each branch's relative arrival order.
func TestSplitterRoutesByReferenceID(t *testing.T) {
	recs := []*record.Record{
		{Name: "a", RefID: 0},
		{Name: "b", RefID: 1},
		{Name: "c", RefID: 0},
		{Name: "d", RefID: -1}, // unmapped, branch 0
		{Name: "e", RefID: 1},
	}
	src := sourceOf(recs)
	split := NewSplitter(16, ByReferenceID)

	var even, odd collector
	evenSink := even.sink()
	oddSink := odd.sink()

	g := stage.NewGraph()
	if err := g.Connect(src, split); err != nil {
		t.Fatalf("Connect src->split: %v", err)
	}
	if err := split.AddSink(evenSink); err != nil {
		t.Fatalf("AddSink evenSink: %v", err)
	}
	if err := split.AddSink(oddSink); err != nil {
		t.Fatalf("AddSink oddSink: %v", err)
	}
	g.Add(evenSink)
	g.Add(oddSink)

	if err := g.RunChain(false); err != nil {
		t.Fatalf("RunChain: %v", err)
	}

	var gotEven, gotOdd []string
	for _, r := range even.recs {
		gotEven = append(gotEven, r.Name)
	}
	for _, r := range odd.recs {
		gotOdd = append(gotOdd, r.Name)
	}
	if want := []string{"a", "c", "d"}; !equalNames(gotEven, want) {
		t.Fatalf("branch 0 got %v, want %v", gotEven, want)
	}
	if want := []string{"b", "e"}; !equalNames(gotOdd, want) {
		t.Fatalf("branch 1 got %v, want %v", gotOdd, want)
	}
}

func equalNames(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

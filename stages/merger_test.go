package stages

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/readflow/engine/record"
	"github.com/readflow/engine/stage"
)

// SortedMerger must reconstitute one globally sorted stream out of
// several individually sorted sources, regardless of how records
// happen to interleave across them.
func TestSortedMergerMergesInOrder(t *testing.T) {
	a := sourceOf([]*record.Record{
		{Name: "a0", RefID: 0, Pos: 10},
		{Name: "a1", RefID: 0, Pos: 30},
		{Name: "a2", RefID: 0, Pos: 50},
	})
	b := sourceOf([]*record.Record{
		{Name: "b0", RefID: 0, Pos: 5},
		{Name: "b1", RefID: 0, Pos: 20},
		{Name: "b2", RefID: 0, Pos: 40},
		{Name: "b3", RefID: 0, Pos: 60},
	})

	merger := NewSortedMerger(record.CoordinateLess, 8)
	var out collector
	sink := out.sink()

	g := stage.NewGraph()
	require.NoError(t, g.Connect(a, merger))
	require.NoError(t, g.Connect(b, merger))
	require.NoError(t, merger.AddSink(sink))
	g.Add(merger)
	g.Add(sink)

	require.NoError(t, g.RunChain(false))

	var prev *record.Record
	for _, r := range out.recs {
		if prev != nil {
			require.False(t, record.CoordinateLess(r, prev), "output not sorted: %+v before %+v", r, prev)
		}
		prev = r
	}
	require.Len(t, out.recs, 7)
}

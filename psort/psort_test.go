package psort

import (
	"fmt"
	"testing"

	"github.com/readflow/engine/record"
)

// S1: [(1,100),(0,50),(1,75),(0,50)] sorted by position ->
// [(0,50),(0,50),(1,75),(1,100)], preserving the input order of the
// two (0,50) entries.
func TestStableSortScenarioS1(t *testing.T) {
	recs := []*record.Record{
		{Name: "a", RefID: 1, Pos: 100},
		{Name: "b", RefID: 0, Pos: 50},
		{Name: "c", RefID: 1, Pos: 75},
		{Name: "d", RefID: 0, Pos: 50},
	}
	for i, r := range recs {
		r.SetChunkTag(record.ChunkTag{Source: 0, Index: i})
	}
	StableSort(recs, record.CoordinateLess)
	want := []string{"b", "d", "c", "a"}
	for i, name := range want {
		if recs[i].Name != name {
			t.Fatalf("position %d: got %q, want %q", i, recs[i].Name, name)
		}
	}
}

// Above MinParallelSortSize, StableSort must take the pargo-driven
// partition/merge path and still produce a fully sorted, stable
// result.
func TestStableSortAboveThreshold(t *testing.T) {
	n := MinParallelSortSize + 5000
	recs := make([]*record.Record, n)
	for i := range recs {
		recs[i] = &record.Record{
			Name:  fmt.Sprintf("r%08d", n-i),
			RefID: int32((n - i) % 7),
			Pos:   int32((n - i) % 1000),
		}
		recs[i].SetChunkTag(record.ChunkTag{Source: 0, Index: i})
	}
	StableSort(recs, record.CoordinateLess)
	for i := 1; i < len(recs); i++ {
		if record.CoordinateLess(recs[i], recs[i-1]) {
			t.Fatalf("output not sorted at index %d", i)
		}
	}
}

func TestStableSortEmptyAndSingleton(t *testing.T) {
	StableSort(nil, record.CoordinateLess)
	one := []*record.Record{{Name: "solo"}}
	StableSort(one, record.CoordinateLess)
	if one[0].Name != "solo" {
		t.Fatal("singleton slice mutated")
	}
}

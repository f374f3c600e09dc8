package record

import (
	"sort"
	"testing"
)

// S1: [(1,100),(0,50),(1,75),(0,50)] sorted by position ->
// [(0,50),(0,50),(1,75),(1,100)], with the two (0,50) entries keeping
// their input order.
func TestCoordinateLessScenarioS1(t *testing.T) {
	recs := []*Record{
		{Name: "a", RefID: 1, Pos: 100},
		{Name: "b", RefID: 0, Pos: 50},
		{Name: "c", RefID: 1, Pos: 75},
		{Name: "d", RefID: 0, Pos: 50},
	}
	for i, r := range recs {
		r.SetChunkTag(ChunkTag{Source: 0, Index: i})
	}
	sort.SliceStable(recs, func(i, j int) bool { return CoordinateLess(recs[i], recs[j]) })
	want := []string{"b", "d", "c", "a"}
	for i, name := range want {
		if recs[i].Name != name {
			t.Fatalf("position %d: got %q, want %q", i, recs[i].Name, name)
		}
	}
}

func TestCoordinateLessUnmappedSortsLast(t *testing.T) {
	mapped := &Record{Name: "m", RefID: 0, Pos: 0}
	unmapped := &Record{Name: "u", RefID: Unmapped}
	if !CoordinateLess(mapped, unmapped) {
		t.Error("mapped record should sort before unmapped")
	}
	if CoordinateLess(unmapped, mapped) {
		t.Error("unmapped record should not sort before mapped")
	}
}

func TestQuerynameLess(t *testing.T) {
	a := &Record{Name: "alpha", Flag: FlagFirstInPair}
	b := &Record{Name: "alpha"}
	if !QuerynameLess(a, b) {
		t.Error("first-in-pair should sort before its mate with equal name")
	}
	c := &Record{Name: "beta"}
	if !QuerynameLess(a, c) {
		t.Error("alpha should sort before beta")
	}
}

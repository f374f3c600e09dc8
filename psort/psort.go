// Package psort implements the comparator-parameterized parallel
// in-memory stable sort used by the external sorter's chunk sort:
// below MinParallelSortSize records,
// a single sequential stable sort is used; at or above it, the slice
// is partitioned into contiguous runs, each run is sorted in parallel,
// and the runs are merged back together, all stably.
//
// Grounded on elprep's sam.AlignmentSorter (sam/sam-types.go), which
// implements exactly the Len/Less/SequentialSort/NewTemp/Assign
// contract github.com/exascience/pargo/sort's StableSort expects,
// generalized here from []*sam.Alignment to []*record.Record with a
// record.Less comparator supplied by the caller instead of a fixed
// sam.By value.
package psort

import (
	"sort"

	pargosort "github.com/exascience/pargo/sort"

	"github.com/readflow/engine/record"
)

// MinParallelSortSize: below this many records, StableSort falls back
// to a single-threaded sort.SliceStable instead of paying
// partition/merge overhead.
const MinParallelSortSize = 30000

// recordSorter adapts a []*record.Record slice and a record.Less
// comparator to pargo/sort's StableSorter interface.
type recordSorter struct {
	recs []*record.Record
	less record.Less
}

func (s recordSorter) Len() int { return len(s.recs) }

func (s recordSorter) Less(i, j int) bool { return s.less(s.recs[i], s.recs[j]) }

// SequentialSort stably sorts the sub-run recs[i:j] on the calling
// goroutine; pargo's StableSort calls this once per partition before
// merging partitions back together.
func (s recordSorter) SequentialSort(i, j int) {
	run := s.recs[i:j]
	less := s.less
	sort.SliceStable(run, func(a, b int) bool { return less(run[a], run[b]) })
}

// NewTemp returns a same-sized scratch StableSorter pargo's merge step
// uses as a destination buffer while combining sorted runs.
func (s recordSorter) NewTemp() pargosort.StableSorter {
	return recordSorter{recs: make([]*record.Record, len(s.recs)), less: s.less}
}

// Assign returns a function copying len elements from source[j:] into
// s.recs[i:], the primitive pargo's merge uses to interleave two
// sorted runs into the temp buffer.
func (s recordSorter) Assign(source pargosort.StableSorter) func(i, j, len int) {
	dst, src := s.recs, source.(recordSorter).recs
	return func(i, j, ln int) {
		copy(dst[i:i+ln], src[j:j+ln])
	}
}

// StableSort sorts recs in place under less. The sort is stable: two
// records that compare equal under less retain their relative input
// order, whether or not the parallel path is taken.
func StableSort(recs []*record.Record, less record.Less) {
	if len(recs) < MinParallelSortSize {
		sort.SliceStable(recs, func(i, j int) bool { return less(recs[i], recs[j]) })
		return
	}
	pargosort.StableSort(recordSorter{recs: recs, less: less})
}

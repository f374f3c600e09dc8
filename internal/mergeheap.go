package internal

import (
	"container/heap"

	"github.com/readflow/engine/record"
)

// Puller is the minimal contract a k-way merge source exposes: pull
// the next record, or (nil, nil) once that source is exhausted.
// extsort's temp-file readers and stages.SortedMerger's live stage
// sources both implement it, letting them share this one merge core:
// the same merge algorithm run over temp files in one case and live
// stage sources in the other.
type Puller interface {
	Pull() (*record.Record, error)
}

type mergeItem struct {
	rec    *record.Record
	source int
}

type mergeHeap struct {
	items []mergeItem
	less  record.Less
}

func (h *mergeHeap) Len() int            { return len(h.items) }
func (h *mergeHeap) Less(i, j int) bool  { return h.less(h.items[i].rec, h.items[j].rec) }
func (h *mergeHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap) Push(x interface{})  { h.items = append(h.items, x.(mergeItem)) }
func (h *mergeHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

// MergeSources performs the k-way merge shared by the external
// sorter's merge phase and the sorted merger's fan-in: seed a min-heap
// with each source's first record (ordered by less), then repeatedly
// pop the minimum, hand it to emit, and refill from the element's
// originating source, until every source is exhausted. emit returning
// an error aborts the merge and that error is returned; a Pull error
// aborts likewise.
//
// Grounded on OpenGE's read_sorter.cpp MergeSortedRuns (a
// multiset<SortedMergeElement>, here a container/heap priority queue,
// cross-checked against other_examples/lanrat-extsort's
// queue.PriorityQueue-based merge) and elprep's split-merge.go
// per-group channel merge, which this generalizes into one algorithm
// parameterized over Puller instead of duplicating it once for temp
// files and once for live stage queues.
func MergeSources(sources []Puller, less record.Less, emit func(*record.Record) error) error {
	h := &mergeHeap{less: less}
	heap.Init(h)
	for i, s := range sources {
		rec, err := s.Pull()
		if err != nil {
			return err
		}
		if rec != nil {
			heap.Push(h, mergeItem{rec: rec, source: i})
		}
	}
	for h.Len() > 0 {
		top := heap.Pop(h).(mergeItem)
		if err := emit(top.rec); err != nil {
			return err
		}
		next, err := sources[top.source].Pull()
		if err != nil {
			return err
		}
		if next != nil {
			heap.Push(h, mergeItem{rec: next, source: top.source})
		}
	}
	return nil
}

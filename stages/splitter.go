// Package stages implements the two multi-edge graph nodes a stage
// graph needs beyond simple single-input transforms: Splitter, a
// deterministic fan-out, and SortedMerger, a fan-in that reconstitutes
// one sorted stream from several sorted ones. Splitter builds on
// package stage's Base; SortedMerger implements stage.Stage directly,
// with one stage.Sink inlet per source.
//
// Grounded on elprep's sam/split-merge.go: ComputeContigGroups and
// SplitFilePerChromosome there decide which of N output files a given
// reference ID's records belong to and write each to its own
// bgzf-backed file; Splitter generalizes that routing decision (here,
// a caller-supplied key function rather than a fixed chromosome-group
// table) into a stage that fans out live records instead of writing
// files. MergeSortedFilesSplitPerChromosome's per-group merge loop is
// the same shape SortedMerger implements, but reusing
// internal.MergeSources: the identical k-way merge algorithm run over
// live stage sources instead of temp files.
package stages

import (
	"github.com/readflow/engine/engineerr"
	"github.com/readflow/engine/record"
	"github.com/readflow/engine/stage"
)

// KeyFunc assigns a record to one of N output branches, returning an
// index in [0, n). A KeyFunc must be deterministic and must never
// return an index outside that range; Splitter.Run treats an
// out-of-range index as a GraphError.
type KeyFunc func(rec *record.Record, n int) int

// ByReferenceID is a KeyFunc grounded on elprep's ComputeContigGroups:
// it buckets records by rec.RefID modulo n, sending unmapped records
// (RefID < 0) to branch 0, the same bucket elprep's unmapped reads
// land in.
func ByReferenceID(rec *record.Record, n int) int {
	if rec.RefID < 0 {
		return 0
	}
	return int(rec.RefID) % n
}

// Splitter is a single-source, N-sink Stage that routes each record it
// pulls to exactly one sink, chosen by key. The records reaching any
// one sink keep the relative order they arrived in.
type Splitter struct {
	stage.Base
	key KeyFunc
	n   int

	// pending is a record already pulled from the input edge and
	// routed to pendingIdx, but not yet accepted by that one sink; a
	// Splitter keeps this itself rather than using stage.EmitBuffer,
	// since it only ever has one outstanding target at a time, never
	// every sink.
	pending    *record.Record
	pendingIdx int
}

// NewSplitter returns a Splitter with the given inbound edge capacity
// (stage.DefaultQueueCapacity if <= 0) routing by key across however
// many sinks are eventually registered via AddSink. AddSink calls
// beyond the n-th are themselves routable: n grows to match however
// many sinks are actually wired, so callers should finish wiring
// sinks before Run starts.
func NewSplitter(inputCapacity int, key KeyFunc) *Splitter {
	if inputCapacity <= 0 {
		inputCapacity = stage.DefaultQueueCapacity
	}
	return &Splitter{Base: *stage.NewBase(inputCapacity), key: key}
}

func (s *Splitter) AddSink(sink stage.Sink) error {
	if err := s.Base.AddSink(sink); err != nil {
		return err
	}
	s.n++
	return nil
}

func (s *Splitter) Header() (*record.Header, error) { return s.HeaderFromSource() }

func (s *Splitter) Run(g *stage.Graph) error {
	defer s.CloseSinks()
	for {
		rec, ok := s.Pull()
		if !ok {
			return nil
		}
		if g.Aborted() {
			continue
		}
		idx := s.key(rec, s.n)
		if idx < 0 || idx >= s.n {
			return engineerr.Newf(engineerr.GraphError, "stages: Splitter key func returned out-of-range branch %d (n=%d)", idx, s.n)
		}
		if err := s.Sinks()[idx].Put(rec); err != nil {
			return err
		}
	}
}

// tryDeliverPending attempts to hand s.pending to s.Sinks()[s.pendingIdx]
// without blocking. A sink without a TryPut falls back to a blocking
// Put; every sink wired in practice (another stage.Base or a
// SortedMerger inlet) implements it.
func (s *Splitter) tryDeliverPending() (delivered bool, err error) {
	sink := s.Sinks()[s.pendingIdx]
	try, ok := sink.(stage.TrySink)
	if !ok {
		if err := sink.Put(s.pending); err != nil {
			return false, err
		}
		s.pending = nil
		return true, nil
	}
	pushed, closed := try.TryPut(s.pending)
	if pushed || closed {
		s.pending = nil
		return true, nil
	}
	return false, nil
}

// Step implements stage.Stepper: resume delivering a pending record
// first, then pull and route at most one fresh one.
func (s *Splitter) Step(g *stage.Graph) (progressed bool, done bool, err error) {
	if s.pending != nil {
		delivered, err := s.tryDeliverPending()
		if err != nil {
			return false, false, err
		}
		return delivered, false, nil
	}
	rec, ok, drained := s.TryPull()
	if !ok {
		if drained {
			s.CloseSinks()
			return true, true, nil
		}
		return false, false, nil
	}
	if g.Aborted() {
		return true, false, nil
	}
	idx := s.key(rec, s.n)
	if idx < 0 || idx >= s.n {
		return false, false, engineerr.Newf(engineerr.GraphError, "stages: Splitter key func returned out-of-range branch %d (n=%d)", idx, s.n)
	}
	s.pending = rec
	s.pendingIdx = idx
	if _, err := s.tryDeliverPending(); err != nil {
		return false, false, err
	}
	return true, false, nil
}

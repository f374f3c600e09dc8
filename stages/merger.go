package stages

import (
	"github.com/readflow/engine/engineerr"
	"github.com/readflow/engine/internal"
	"github.com/readflow/engine/queue"
	"github.com/readflow/engine/record"
	"github.com/readflow/engine/stage"
)

// inlet is one SortedMerger source's private edge: its own bounded
// queue, so the merger can pull the current head of each source
// independently rather than losing per-source ordering in one shared
// FIFO. A correct merge needs the true minimum across sources, not
// first-arrived-first-served.
type inlet struct {
	q *queue.Queue[*record.Record]
}

func newInlet(capacity int) *inlet {
	return &inlet{q: queue.New[*record.Record](capacity)}
}

func (i *inlet) Put(rec *record.Record) error {
	i.q.Push(rec)
	return nil
}

// TryPut implements stage.TrySink, letting a producer feeding this
// inlet take part in a round-robin sequential run.
func (i *inlet) TryPut(rec *record.Record) (pushed bool, closed bool) {
	return i.q.TryPush(rec)
}

func (i *inlet) CloseInput() {
	i.q.Close()
}

// Pull implements internal.Puller: (nil, nil) at end of stream.
func (i *inlet) Pull() (*record.Record, error) {
	rec, ok := i.q.Pop()
	if !ok {
		return nil, nil
	}
	return rec, nil
}

// tryPull is Pull's non-blocking counterpart, used by
// SortedMerger.Step to fill its per-inlet head cache.
func (i *inlet) tryPull() (rec *record.Record, ok bool, drained bool) {
	return i.q.TryPop()
}

// SortedMerger is a fan-in Stage: N upstream sources, each already
// individually sorted under the same order, merged into a single
// sorted output stream pushed to its sinks. It implements stage.Stage
// directly rather than embedding stage.Base, since Base only supports
// one inbound edge and a merger fundamentally needs one per source.
type SortedMerger struct {
	less          record.Less
	inletCapacity int

	inlets  []*inlet
	sources []stage.Stage
	sinks   []stage.Sink

	// head cache for Step's non-blocking merge: heads[i] is the
	// buffered next record from inlets[i] once known, headDone[i]
	// marks that source exhausted. A minimum can only be computed, and
	// emitted, once every live source's head is known -- emitting
	// early off a partial view of the heads could pick a record that
	// isn't actually the global minimum.
	headInit bool
	heads    []*record.Record
	headDone []bool
	out      stage.EmitBuffer
}

// NewSortedMerger returns a SortedMerger ordering its inputs under
// less, with the given per-source inbound edge capacity
// (stage.DefaultQueueCapacity if <= 0).
func NewSortedMerger(less record.Less, inletCapacity int) *SortedMerger {
	if inletCapacity <= 0 {
		inletCapacity = stage.DefaultQueueCapacity
	}
	return &SortedMerger{less: less, inletCapacity: inletCapacity}
}

func (m *SortedMerger) AddSource(source stage.Stage) (stage.Sink, error) {
	in := newInlet(m.inletCapacity)
	m.inlets = append(m.inlets, in)
	m.sources = append(m.sources, source)
	return in, nil
}

func (m *SortedMerger) AddSink(sink stage.Sink) error {
	m.sinks = append(m.sinks, sink)
	return nil
}

func (m *SortedMerger) CloseInput() {
	for _, in := range m.inlets {
		in.CloseInput()
	}
}

// Header defers to the first source: every source is required to
// share a header compatible with the merge order.
func (m *SortedMerger) Header() (*record.Header, error) {
	if len(m.sources) == 0 {
		return nil, engineerr.New(engineerr.GraphError, "stages: SortedMerger.Header called with no sources")
	}
	return m.sources[0].Header()
}

func (m *SortedMerger) emit(rec *record.Record) error {
	for _, sink := range m.sinks {
		if err := sink.Put(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *SortedMerger) closeSinks() {
	for _, sink := range m.sinks {
		sink.CloseInput()
	}
}

// Run performs the k-way merge over m's inlets, sharing
// internal.MergeSources with extsort's merge-phase over temp files:
// the same algorithm run over live stage sources instead. Once g
// aborts, Run still drains every inlet (each Pull call frees room for
// a producer that may be blocked in Put) but stops emitting merged
// records downstream.
func (m *SortedMerger) Run(g *stage.Graph) error {
	defer m.closeSinks()
	if len(m.inlets) == 0 {
		return nil
	}
	pullers := make([]internal.Puller, len(m.inlets))
	for i, in := range m.inlets {
		pullers[i] = in
	}
	return internal.MergeSources(pullers, m.less, func(rec *record.Record) error {
		if g.Aborted() {
			return nil
		}
		return m.emit(rec)
	})
}

// Step implements stage.Stepper with a merge core that cannot reuse
// internal.MergeSources, since that k-way merge pulls blockingly from
// each source as it goes: Step instead keeps a per-inlet head cache
// and only ever computes a minimum once every live inlet's head is
// known, refilling empty head slots non-blockingly on each call.
func (m *SortedMerger) Step(g *stage.Graph) (progressed bool, done bool, err error) {
	if len(m.inlets) == 0 {
		m.closeSinks()
		return true, true, nil
	}
	if !m.headInit {
		m.heads = make([]*record.Record, len(m.inlets))
		m.headDone = make([]bool, len(m.inlets))
		m.headInit = true
	}

	if m.out.HasPending() {
		_, prog, err := m.out.FlushEmit(m.sinks)
		if err != nil {
			return prog, false, err
		}
		return prog, false, nil
	}

	progressed = false
	allKnown := true
	for i, in := range m.inlets {
		if m.headDone[i] || m.heads[i] != nil {
			continue
		}
		rec, ok, drained := in.tryPull()
		switch {
		case ok:
			m.heads[i] = rec
			progressed = true
		case drained:
			m.headDone[i] = true
			progressed = true
		default:
			allKnown = false
		}
	}
	if !allKnown {
		return progressed, false, nil
	}

	minIdx := -1
	for i := range m.inlets {
		if m.headDone[i] {
			continue
		}
		if minIdx == -1 || m.less(m.heads[i], m.heads[minIdx]) {
			minIdx = i
		}
	}
	if minIdx == -1 {
		m.closeSinks()
		return true, true, nil
	}
	rec := m.heads[minIdx]
	m.heads[minIdx] = nil
	if g.Aborted() {
		return true, false, nil
	}
	if _, prog, err := m.out.QueueEmit(m.sinks, rec); err != nil {
		return prog, false, err
	}
	return true, false, nil
}

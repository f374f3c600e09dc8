package stage

import (
	"io"

	"github.com/readflow/engine/record"
)

// SourceFunc is a leaf Stage that drives a plain producer function
// until it reports io.EOF, pushing each record it returns to every
// registered sink. It has no input edge of its own: AddSource on a
// SourceFunc always fails.
type SourceFunc struct {
	Base
	produce func() (*record.Record, error)
	hdr     *record.Header
}

// NewSource returns a SourceFunc driven by produce, reporting hdr as
// its header. produce must return io.EOF, not a wrapped error, at a
// clean end of stream.
func NewSource(produce func() (*record.Record, error), hdr *record.Header) *SourceFunc {
	return &SourceFunc{Base: *NewBase(0), produce: produce, hdr: hdr}
}

func (s *SourceFunc) Header() (*record.Header, error) { return s.hdr, nil }

func (s *SourceFunc) Run(g *Graph) error {
	defer s.CloseSinks()
	for {
		if g.Aborted() {
			return nil
		}
		rec, err := s.produce()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.Emit(rec); err != nil {
			return err
		}
	}
}

// Step implements Stepper: it either resumes flushing a record produce
// has already returned but some sink was not ready for, or, once that
// clears, calls produce once for a fresh one.
func (s *SourceFunc) Step(g *Graph) (progressed bool, done bool, err error) {
	if s.HasPending() {
		flushed, prog, err := s.FlushEmit()
		if err != nil {
			return prog, false, err
		}
		if !flushed {
			return prog, false, nil
		}
		return true, false, nil
	}
	if g.Aborted() {
		s.CloseSinks()
		return false, true, nil
	}
	rec, err := s.produce()
	if err == io.EOF {
		s.CloseSinks()
		return false, true, nil
	}
	if err != nil {
		return false, false, err
	}
	_, prog, err := s.QueueEmit(rec)
	if err != nil {
		return prog, false, err
	}
	return true, false, nil
}

// FilterFunc is a single-source, single-logical-role Stage that
// applies transform to each record it pulls, forwarding the result to
// every sink unless transform reports keep == false: a filter stage
// may drop records as well as transform them.
type FilterFunc struct {
	Base
	transform func(*record.Record) (*record.Record, bool, error)
}

// NewFilter returns a FilterFunc with the given inbound edge capacity
// (DefaultQueueCapacity if <= 0).
func NewFilter(inputCapacity int, transform func(*record.Record) (*record.Record, bool, error)) *FilterFunc {
	if inputCapacity <= 0 {
		inputCapacity = DefaultQueueCapacity
	}
	return &FilterFunc{Base: *NewBase(inputCapacity), transform: transform}
}

func (f *FilterFunc) Header() (*record.Header, error) { return f.HeaderFromSource() }

func (f *FilterFunc) Run(g *Graph) error {
	defer f.CloseSinks()
	for {
		rec, ok := f.Pull()
		if !ok {
			return nil
		}
		if g.Aborted() {
			continue
		}
		out, keep, err := f.transform(rec)
		if err != nil {
			return err
		}
		if !keep {
			continue
		}
		if err := f.Emit(out); err != nil {
			return err
		}
	}
}

// Step implements Stepper, applying the same rules as Run one record
// at a time: resume a stuck emission first, then pull at most one
// record, transform it, and queue it for emission.
func (f *FilterFunc) Step(g *Graph) (progressed bool, done bool, err error) {
	if f.HasPending() {
		_, prog, err := f.FlushEmit()
		if err != nil {
			return prog, false, err
		}
		return prog, false, nil
	}
	rec, ok, drained := f.TryPull()
	if !ok {
		if drained {
			f.CloseSinks()
			return true, true, nil
		}
		return false, false, nil
	}
	if g.Aborted() {
		return true, false, nil
	}
	out, keep, err := f.transform(rec)
	if err != nil {
		return false, false, err
	}
	if !keep {
		return true, false, nil
	}
	_, prog, err := f.QueueEmit(out)
	if err != nil {
		return prog, false, err
	}
	return true, false, nil
}

// SinkFunc is a leaf Stage that pulls from its single source and hands
// each record to consume, calling finish (if non-nil) once the source
// is exhausted or the graph aborts.
type SinkFunc struct {
	Base
	consume func(*record.Record) error
	finish  func() error
}

// NewSink returns a SinkFunc with the given inbound edge capacity
// (DefaultQueueCapacity if <= 0).
func NewSink(inputCapacity int, consume func(*record.Record) error, finish func() error) *SinkFunc {
	if inputCapacity <= 0 {
		inputCapacity = DefaultQueueCapacity
	}
	return &SinkFunc{Base: *NewBase(inputCapacity), consume: consume, finish: finish}
}

func (s *SinkFunc) Header() (*record.Header, error) { return s.HeaderFromSource() }

func (s *SinkFunc) Run(g *Graph) error {
	for {
		rec, ok := s.Pull()
		if !ok {
			if s.finish != nil {
				return s.finish()
			}
			return nil
		}
		if g.Aborted() {
			continue
		}
		if err := s.consume(rec); err != nil {
			return err
		}
	}
}

// Step implements Stepper: pull at most one record and consume it, or
// call finish once the source is exhausted.
func (s *SinkFunc) Step(g *Graph) (progressed bool, done bool, err error) {
	rec, ok, drained := s.TryPull()
	if !ok {
		if drained {
			if s.finish != nil {
				if err := s.finish(); err != nil {
					return false, true, err
				}
			}
			return true, true, nil
		}
		return false, false, nil
	}
	if g.Aborted() {
		return true, false, nil
	}
	if err := s.consume(rec); err != nil {
		return false, false, err
	}
	return true, false, nil
}

// Package stage implements a streaming execution graph: a small set of
// record-processing nodes wired together and run concurrently, one
// goroutine per stage, communicating over the
// bounded queues in package queue rather than elprep's batch-oriented
// pargo/pipeline stages.
//
// Grounded on elprep's sam/filter-pipeline.go, whose Filter/Source/Sink
// interfaces and RunPipeline loop this package reinterprets: elprep
// pulls whole batches through a fixed pargo pipeline and fans them out
// across a worker pool per batch; this package instead gives each
// stage its own goroutine and lets queue depth provide back-pressure,
// since the target here is a streaming record-at-a-time graph (reader
// -> filter chain -> splitter/merger -> writer) rather than a batch
// transform over an in-memory slice.
package stage

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/readflow/engine/engineerr"
	"github.com/readflow/engine/queue"
	"github.com/readflow/engine/record"
)

// DefaultQueueCapacity is the bounded queue depth an edge uses when a
// stage constructor is not given an explicit one.
const DefaultQueueCapacity = 4096

// Sink is what an upstream stage's Run loop pushes produced records
// into: either another stage's own input edge (via Base, which
// implements Sink directly) or a fan-in stage's per-source inlet (see
// package stages' SortedMerger).
type Sink interface {
	// Put hands rec to whatever is on the other end of this edge.
	// Put blocks if the edge is at capacity.
	Put(rec *record.Record) error
	// CloseInput marks this edge as having no further producer,
	// letting a blocked or future Pull drain and then return ok ==
	// false. CloseInput is idempotent.
	CloseInput()
}

// TrySink is the non-blocking counterpart to Sink: a stage that can be
// driven by RunSequential's single-goroutine round-robin scheduler
// implements it alongside Sink. TryPut never blocks: it reports
// whether rec was accepted, or whether the edge was already closed.
type TrySink interface {
	Sink
	TryPut(rec *record.Record) (pushed bool, closed bool)
}

// Stepper is the capability RunSequential requires of every stage in a
// graph it drives: a non-blocking unit of work that makes progress
// without committing to run to completion. Step is called repeatedly
// in round-robin order across every stage until each reports done.
type Stepper interface {
	// Step does at most a small, bounded amount of work: pull one
	// record if one is buffered, try to deliver at most one pending
	// emission, or notice end of stream. progressed reports whether
	// anything changed (so RunSequential can detect a stalled graph).
	// done reports that this stage has nothing further to do, ever.
	Step(g *Graph) (progressed bool, done bool, err error)
}

// EmitBuffer holds at most one produced record that a Step
// implementation has not yet finished delivering to every sink,
// letting Step return without blocking when a downstream edge is
// momentarily full instead of losing the record or retrying inline.
type EmitBuffer struct {
	pending   *record.Record
	deliverAt int
}

// HasPending reports whether a record is still waiting on delivery
// from a previous Step call.
func (e *EmitBuffer) HasPending() bool { return e.pending != nil }

// QueueEmit begins delivering rec to sinks, in order, stopping as soon
// as one sink is not ready to accept it. It must only be called when
// HasPending is false. flushed reports whether every sink already
// accepted rec (so the caller can treat this the way it would a
// synchronous Emit); if not, the remaining sinks are remembered and
// FlushEmit must be called on later Step calls until it reports true.
// progressed reports whether at least one sink advanced, which callers
// need to distinguish real but partial progress from a fully stalled
// downstream edge.
func (e *EmitBuffer) QueueEmit(sinks []Sink, rec *record.Record) (flushed bool, progressed bool, err error) {
	e.pending = rec
	e.deliverAt = 0
	return e.FlushEmit(sinks)
}

// FlushEmit resumes delivering the pending record (a no-op, returning
// true, if there is none) to sinks starting from wherever the previous
// call left off, stopping again at the first sink that is not ready. A
// closed sink is treated as already delivered, the non-blocking
// equivalent of Emit's synchronous Put into a stage that has already
// been torn down by an aborting graph.
func (e *EmitBuffer) FlushEmit(sinks []Sink) (flushed bool, progressed bool, err error) {
	if e.pending == nil {
		return true, false, nil
	}
	start := e.deliverAt
	for e.deliverAt < len(sinks) {
		sink, ok := sinks[e.deliverAt].(TrySink)
		if !ok {
			if err := sinks[e.deliverAt].Put(e.pending); err != nil {
				return false, e.deliverAt > start, err
			}
			e.deliverAt++
			continue
		}
		pushed, closed := sink.TryPut(e.pending)
		if pushed || closed {
			e.deliverAt++
			continue
		}
		return false, e.deliverAt > start, nil
	}
	e.pending = nil
	e.deliverAt = 0
	return true, true, nil
}

// Stage is the capability every node in the graph implements:
// add a sink, add a source (which returns the Sink records are put
// into), run, report a header.
type Stage interface {
	// AddSource registers source as a producer feeding this stage and
	// returns the Sink source's Run loop must Put records into (and
	// CloseInput once done producing). Stages with more than one
	// source (fan-in, see stages.SortedMerger) return a fresh Sink
	// per call so each source's records land on their own edge.
	AddSource(source Stage) (Sink, error)

	// AddSink registers sink as a consumer of this stage's output.
	// Run must push every record it produces to every sink registered
	// this way, and CloseInput on each once Run finishes.
	AddSink(sink Sink) error

	// Run is this stage's per-goroutine body. It returns nil at a
	// clean end of stream, or the first error a source, transform, or
	// sink raised. Run must observe g's abort flag: once set, Run may
	// keep draining records already buffered on its own input edge,
	// but must not emit any further record to its sinks.
	Run(g *Graph) error

	// Header returns this stage's header, resolved lazily: a source
	// stage supplies one directly; any other stage defers to (one of)
	// its own sources.
	Header() (*record.Header, error)

	// CloseInput closes this stage's own inbound edge(s), unblocking
	// a goroutine parked in Pull. Used both for ordinary end-of-stream
	// propagation (an upstream stage closes its sink once done
	// producing) and by Graph on abort, to unstick any stage that is
	// blocked waiting on input that will now never arrive.
	CloseInput()
}

// Base implements the single-source case of Stage: one inbound edge,
// any number of outbound sinks. Concrete stage types embed Base and
// implement Run and Header themselves; source/leaf stages that have no
// upstream pass inputCapacity == 0 to NewBase, leaving Base.in nil, and
// must not call AddSource on themselves.
type Base struct {
	sinks   []Sink
	sources []Stage
	in      *queue.Queue[*record.Record]
	out     EmitBuffer
}

// NewBase returns a Base with a fresh inbound edge of the given
// capacity, or no inbound edge at all if inputCapacity <= 0 (for
// source/leaf stages).
func NewBase(inputCapacity int) *Base {
	b := &Base{}
	if inputCapacity > 0 {
		b.in = queue.New[*record.Record](inputCapacity)
	}
	return b
}

func (b *Base) AddSource(source Stage) (Sink, error) {
	if b.in == nil {
		return nil, engineerr.New(engineerr.GraphError, "stage: AddSource on a stage with no input edge")
	}
	if len(b.sources) > 0 {
		return nil, engineerr.New(engineerr.GraphError, "stage: a single-input stage cannot take a second source")
	}
	b.sources = append(b.sources, source)
	return b, nil
}

func (b *Base) AddSink(sink Sink) error {
	b.sinks = append(b.sinks, sink)
	return nil
}

// Put implements Sink by pushing rec onto this stage's own inbound
// edge; it is what an upstream stage's Run loop calls.
func (b *Base) Put(rec *record.Record) error {
	if b.in == nil {
		return engineerr.New(engineerr.GraphError, "stage: Put on a stage with no input edge")
	}
	b.in.Push(rec)
	return nil
}

// TryPut implements TrySink by pushing rec onto this stage's own
// inbound edge without blocking.
func (b *Base) TryPut(rec *record.Record) (pushed bool, closed bool) {
	if b.in == nil {
		return false, true
	}
	return b.in.TryPush(rec)
}

func (b *Base) CloseInput() {
	if b.in != nil {
		b.in.Close()
	}
}

// Pull blocks for this stage's next inbound record, returning ok ==
// false once the edge is closed and drained.
func (b *Base) Pull() (*record.Record, bool) {
	return b.in.Pop()
}

// TryPull is the non-blocking counterpart to Pull: ok is true if a
// record was returned, drained is true once the edge is closed and
// empty. If neither is true, the caller should try again later.
func (b *Base) TryPull() (rec *record.Record, ok bool, drained bool) {
	return b.in.TryPop()
}

// Emit pushes rec to every registered sink, stopping at the first
// error.
func (b *Base) Emit(rec *record.Record) error {
	for _, sink := range b.sinks {
		if err := sink.Put(rec); err != nil {
			return err
		}
	}
	return nil
}

// HasPending reports whether a previous QueueEmit call on this stage
// has not yet finished delivering to every sink.
func (b *Base) HasPending() bool { return b.out.HasPending() }

// QueueEmit begins a non-blocking delivery of rec to every registered
// sink; see EmitBuffer.QueueEmit.
func (b *Base) QueueEmit(rec *record.Record) (flushed bool, progressed bool, err error) {
	return b.out.QueueEmit(b.sinks, rec)
}

// FlushEmit resumes a delivery begun by QueueEmit; see
// EmitBuffer.FlushEmit.
func (b *Base) FlushEmit() (flushed bool, progressed bool, err error) {
	return b.out.FlushEmit(b.sinks)
}

// CloseSinks signals end of stream to every registered sink. Call it
// once, via defer, as the last thing a Run implementation does.
func (b *Base) CloseSinks() {
	for _, sink := range b.sinks {
		sink.CloseInput()
	}
}

// Sinks returns the sinks registered so far, in registration order.
// Most stages only ever need Emit's broadcast-to-all behavior; a
// fan-out stage like stages.Splitter needs indexed access instead, to
// route a given record to exactly one of them.
func (b *Base) Sinks() []Sink {
	return b.sinks
}

// HeaderFromSource returns the header of this stage's single source,
// the usual Header implementation for a transform or sink stage.
func (b *Base) HeaderFromSource() (*record.Header, error) {
	if len(b.sources) == 0 {
		return nil, engineerr.New(engineerr.GraphError, "stage: Header called on a stage with no source")
	}
	return b.sources[0].Header()
}

// Graph owns a set of wired Stages and runs them to completion.
type Graph struct {
	stages []Stage
	added  map[Stage]bool

	// Verbose, when set by the caller (engine.Config.Verbose, typically),
	// makes RunChain/RunSequential log each stage's start and completion
	// to the standard logger.
	Verbose bool

	mu    sync.Mutex
	err   error
	abort int32
}

// NewGraph returns an empty Graph.
func NewGraph() *Graph {
	return &Graph{}
}

func (g *Graph) logf(format string, args ...interface{}) {
	if g.Verbose {
		log.Printf("stage: "+format, args...)
	}
}

// Add registers s as a node of g, if it is not registered already.
// Order does not matter: RunChain starts every registered stage's own
// goroutine regardless of wiring order, and back-pressure through the
// queues between them keeps producers from outrunning consumers.
func (g *Graph) Add(s Stage) {
	if g.added == nil {
		g.added = make(map[Stage]bool)
	}
	if g.added[s] {
		return
	}
	g.added[s] = true
	g.stages = append(g.stages, s)
}

// Connect wires from's output to to's input: it asks to for the Sink
// representing this edge and hands it to from as a registered sink.
// Connect also registers both stages with g if they are not already
// present.
func (g *Graph) Connect(from, to Stage) error {
	g.Add(from)
	g.Add(to)
	sink, err := to.AddSource(from)
	if err != nil {
		return err
	}
	return from.AddSink(sink)
}

// Aborted reports whether any stage has already failed.
func (g *Graph) Aborted() bool {
	return atomic.LoadInt32(&g.abort) != 0
}

func (g *Graph) abortWith(err error) {
	g.mu.Lock()
	first := g.err == nil
	if first {
		g.err = err
	}
	g.mu.Unlock()
	atomic.StoreInt32(&g.abort, 1)
	if first {
		// Unblock every stage that might be parked in Pull waiting on
		// input that a now-dead upstream will never send again.
		for _, s := range g.stages {
			s.CloseInput()
		}
	}
}

// RunChain runs every stage registered with g, one goroutine apiece,
// and waits for them all to finish, returning the first error any
// stage raised. sequential switches to RunSequential instead, for
// engine.Config.NoThreads: a single-chain graph run entirely on the
// caller's own goroutine, no concurrency at all.
func (g *Graph) RunChain(sequential bool) error {
	if sequential {
		return g.RunSequential()
	}
	g.logf("running %d stages concurrently, one goroutine each", len(g.stages))
	var wg sync.WaitGroup
	for _, s := range g.stages {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.logf("%T: started", s)
			if err := s.Run(g); err != nil {
				g.logf("%T: failed: %v", s, err)
				g.abortWith(err)
			} else {
				g.logf("%T: finished", s)
			}
		}()
	}
	wg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// RunSequential runs every registered stage on the caller's own
// goroutine, with no concurrency at all, by round-robin stepping each
// one a bounded unit of work at a time via Stepper instead of running
// any one stage to completion before the next starts. This keeps a
// sequential run correct regardless of how much data a stage produces
// relative to its downstream queue capacity: a producer that fills its
// sink's edge simply has that Step report no progress until the
// consumer's own Step drains it, rather than blocking the only
// goroutine driving both of them. Every registered stage must
// implement Stepper; RunSequential reports a GraphError up front if
// one does not, rather than risk a hang.
func (g *Graph) RunSequential() error {
	steppers := make([]Stepper, len(g.stages))
	for i, s := range g.stages {
		st, ok := s.(Stepper)
		if !ok {
			return engineerr.Newf(engineerr.GraphError, "stage: %T does not support sequential execution", s)
		}
		steppers[i] = st
	}
	g.logf("running %d stages sequentially on the caller's goroutine", len(steppers))
	done := make([]bool, len(steppers))
	remaining := len(steppers)
	for remaining > 0 {
		progressedAny := false
		for i, st := range steppers {
			if done[i] {
				continue
			}
			progressed, isDone, err := st.Step(g)
			if err != nil {
				g.logf("%T: failed: %v", st, err)
				g.abortWith(err)
				return g.err
			}
			if progressed {
				progressedAny = true
			}
			if isDone {
				g.logf("%T: finished", st)
				done[i] = true
				remaining--
			}
		}
		if !progressedAny && remaining > 0 {
			return engineerr.New(engineerr.GraphError, "stage: sequential run stalled: no stage made progress this round")
		}
	}
	return nil
}

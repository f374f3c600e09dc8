// Package prefetch wraps a codec reader with a background read-ahead
// worker that fills a bounded queue, hiding I/O latency behind a
// buffer while adaptively throttling itself under system load so that
// many concurrent readers do not saturate a spinning disk.
//
// Grounded on elprep's utils/bgzf/bgzf-files.go read-ahead goroutine
// (which fills an internal channel of decompressed blocks a fixed
// window ahead of the consumer) generalized from a fixed-size window
// of blocks to a load-aware bounded queue of decoded record.Record
// values, using golang.org/x/sys/unix for the 1-minute load average
// probe the same way elprep's cmd/util.go and fasta/fasta-files.go
// already reach into golang.org/x/sys/unix for OS-level primitives.
package prefetch

import (
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/readflow/engine/engineerr"
	"github.com/readflow/engine/queue"
	"github.com/readflow/engine/record"
)

// Source is the read side of the codec contract prefetch reads ahead
// from: something producing one record.Record at a time, returning
// io.EOF once exhausted.
type Source interface {
	ReadNext() (*record.Record, error)
}

// Seeker is optionally implemented by a Source that supports
// resetting to an arbitrary position; Reader.Seek requires it.
type Seeker interface {
	Seek(offset int64) error
}

// DefaultCapacity is the bounded queue depth a Reader uses when no
// explicit capacity is given: a prefetch reader must never hold more
// than this many queued records at once.
const DefaultCapacity = 20000

// Throttling policy constants.
const (
	sampleInterval    = 300
	loadHighWaterMark = 400
	loadLowWaterMark  = 100
	hardHighWaterMark = 20000
	hardLowWaterMark  = 5000
	throttleStep      = 20 * time.Millisecond
)

// Reader wraps a Source with a background prefetch worker. The zero
// value is not usable; use NewReader.
type Reader struct {
	src   Source
	q     *queue.Queue[*record.Record]
	mt    bool
	reads int

	mu  sync.Mutex
	err error

	stopping   int32
	workerDone chan struct{}
}

// NewReader wraps src in a Reader with the given queue capacity. If
// multithreaded is false, the reader never spawns a background
// worker: Next reads directly from src, degrading gracefully to
// synchronous reads that yield the same records in the same order a
// multithreaded Reader would.
func NewReader(src Source, multithreaded bool, capacity int) *Reader {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Reader{src: src, mt: multithreaded}
	if multithreaded {
		r.start(capacity)
	}
	return r
}

func (r *Reader) start(capacity int) {
	r.q = queue.New[*record.Record](capacity)
	r.workerDone = make(chan struct{})
	atomic.StoreInt32(&r.stopping, 0)
	go r.run()
}

// run is the single background worker spawned on open: it repeatedly
// reads the next record and pushes it onto the bounded queue, sleeping
// under the adaptive throttling policy between reads, until the
// source is exhausted, a codec error occurs, or Stop is called.
func (r *Reader) run() {
	defer close(r.workerDone)
	defer r.q.Close()
	for {
		if atomic.LoadInt32(&r.stopping) != 0 {
			return
		}
		rec, err := r.src.ReadNext()
		if err == io.EOF {
			return
		}
		if err != nil {
			r.setErr(err)
			return
		}
		r.reads++
		if r.reads%sampleInterval == 0 {
			r.throttle()
		}
		if atomic.LoadInt32(&r.stopping) != 0 {
			return
		}
		// Stop drains the queue concurrently to guarantee this Push
		// cannot block forever even if the consumer has stopped
		// popping; see Stop.
		r.q.Push(rec)
	}
}

// throttle implements the adaptive policy: if the 1-minute load
// average exceeds half the detected core count and the queue
// depth exceeds loadHighWaterMark, sleep until it drains to
// loadLowWaterMark; independent of load, if the queue depth ever
// exceeds hardHighWaterMark, sleep until it drains to
// hardLowWaterMark.
func (r *Reader) throttle() {
	if load1() > float64(runtime.NumCPU())/2 && r.q.Size() > loadHighWaterMark {
		for r.q.Size() > loadLowWaterMark {
			time.Sleep(throttleStep)
		}
	}
	for r.q.Size() > hardHighWaterMark {
		time.Sleep(throttleStep)
	}
}

func (r *Reader) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) storedErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Next blocks until a record is available and returns it, or returns
// (nil, nil) at a clean end of stream, or returns a stored codec error
// surfaced from the background worker: prefetch errors surface on the
// next call to Next, not asynchronously.
func (r *Reader) Next() (*record.Record, error) {
	if !r.mt {
		rec, err := r.src.ReadNext()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
	rec, ok := r.q.Pop()
	if !ok {
		if err := r.storedErr(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return rec, nil
}

// Stop halts the background worker and drains the queue. It is safe
// to call Stop multiple times, and safe to call even if the worker has
// already reached end of stream on its own.
func (r *Reader) Stop() {
	if !r.mt {
		return
	}
	atomic.StoreInt32(&r.stopping, 1)
	// Keep popping until the worker has exited (and, via its deferred
	// q.Close(), closed the queue): a worker that is blocked inside
	// Push when Stop is called needs room freed to observe the
	// stopping flag on its next loop iteration and return.
	for {
		select {
		case <-r.workerDone:
		default:
			r.q.Pop()
			continue
		}
		break
	}
	// Drain whatever remains now that the queue is closed.
	for {
		if _, ok := r.q.Pop(); !ok {
			return
		}
	}
}

// Seek resets the reader to read from offset in the underlying
// source, which must implement Seeker. Seek is only valid after Stop:
// calling it while the background worker is running is a programming
// error surfaced as a GraphError.
func (r *Reader) Seek(offset int64) error {
	if r.mt && atomic.LoadInt32(&r.stopping) == 0 {
		return engineerr.New(engineerr.GraphError, "prefetch: Seek called before Stop")
	}
	seeker, ok := r.src.(Seeker)
	if !ok {
		return engineerr.New(engineerr.GraphError, "prefetch: source does not support Seek")
	}
	if err := seeker.Seek(offset); err != nil {
		return err
	}
	r.mu.Lock()
	r.err = nil
	r.mu.Unlock()
	if r.mt {
		capacity := DefaultCapacity
		if r.q != nil {
			capacity = r.q.Cap()
		}
		r.start(capacity)
	}
	return nil
}

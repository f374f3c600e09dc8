// Package extsort implements the external, disk-backed parallel merge
// sort that orders a record stream too large to fit in memory: phase 1
// chunks the input into memory-sized runs, sorts each run in parallel
// (package psort) and spills it to a temp file; phase 2 opens one
// reader per temp file and multiway-merges them into a single sorted
// output stream, deleting every temp file once the merge has finished
// or failed.
//
// Grounded 1:1 on original_source/openge/src/algorithms/read_sorter.cpp's
// GenerateSortedRuns/CreateSortedTempFile/TempFileWriteJob and
// MergeSortedRuns, translated from OpenGE's raw-pointer/thread-pool
// design into Go: TempFileWriteJob becomes a workerpool.Job closure
// submitted to the shared pool, and OpenGE's m_tempFilenameStub /
// m_numberOfRuns globals become fields of a Sorter value created fresh
// per invocation so concurrent sorts never collide on a temp-file name.
// The multiway merge itself is shared with package stages via
// internal.MergeSources: the sorted-merger's algorithm is identical to
// this package's merge phase, just run over live stage sources instead
// of temp files.
package extsort

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/ulikunitz/xz"

	"github.com/readflow/engine/bamio"
	"github.com/readflow/engine/engineerr"
	"github.com/readflow/engine/internal"
	"github.com/readflow/engine/psort"
	"github.com/readflow/engine/record"
	"github.com/readflow/engine/workerpool"
)

// Default parameter values.
const (
	DefaultRecordsPerChunk = 500000
	DefaultMemoryBudgetMB  = 1024
)

// chunkWriterPoolSize bounds the small, dedicated pool each chunk job
// opens for its own temp file's BGZF block codec: chunk jobs already
// run on the shared pool passed to New, so encoding a chunk's temp
// file through that same pool from inside a running job would be
// reentrant (a worker waiting on its own pool to free a slot); each
// chunk job instead gets its own tiny pool, opened and closed within
// the job.
const chunkWriterPoolSize = 2

// Params configures a Sorter. Zero-valued fields take the documented
// defaults via Params.withDefaults.
type Params struct {
	RecordsPerChunk int
	MemoryBudgetMB  int
	TempDir         string
	CompressTemp    bool

	// Verbose, when set from engine.Config.Verbose, makes a Sorter log
	// each chunk write and each merge phase to the standard logger.
	Verbose bool
}

func (p Params) withDefaults() Params {
	if p.RecordsPerChunk <= 0 {
		p.RecordsPerChunk = DefaultRecordsPerChunk
	}
	if p.MemoryBudgetMB <= 0 {
		p.MemoryBudgetMB = DefaultMemoryBudgetMB
	}
	if p.TempDir == "" {
		p.TempDir = os.TempDir()
	} else if abs, err := internal.FullPathname(p.TempDir); err == nil {
		// A relative TempDir is resolved against the working directory
		// once here, so every chunk path nextTempPath builds later stays
		// correct even if the process later changes its working directory.
		p.TempDir = abs
	}
	return p
}

// Source is the upstream stream a Sorter reads from: the same
// ReadNext/io.EOF contract package bamio's Reader and prefetch's
// Source both already implement.
type Source interface {
	ReadNext() (*record.Record, error)
}

// A Sorter performs one external sort. Its temp-file name stub and
// chunk counter are instance fields, created fresh by New, so that
// concurrent Sorters (or repeated Sort calls on the same Sorter) never
// collide on a temp filename.
type Sorter struct {
	params  Params
	pool    *workerpool.Pool
	stub    string
	counter int32
}

// New returns a Sorter with the given parameters, dispatching chunk
// sort/write jobs to pool.
func New(params Params, pool *workerpool.Pool) *Sorter {
	return &Sorter{
		params: params.withDefaults(),
		pool:   pool,
		stub:   uuid.NewString(),
	}
}

func (s *Sorter) nextTempPath() string {
	n := atomic.AddInt32(&s.counter, 1) - 1
	name := s.stub + "-" + itoa(int(n))
	return filepath.Join(s.params.TempDir, name)
}

func (s *Sorter) logf(format string, args ...interface{}) {
	if s.params.Verbose {
		log.Printf("extsort: "+format, args...)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func removeAll(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}

// isTempChunkName reports whether name has this package's chunk-file shape:
// a 36-character UUID stub, a dash, and a run-counter suffix of digits. A
// Sorter that is killed mid-sort (crash, OOM kill, SIGKILL) never reaches
// MergeSortedRuns' cleanup, leaving its chunk files behind under TempDir.
func isTempChunkName(name string) bool {
	if len(name) < 38 || name[36] != '-' {
		return false
	}
	suffix := name[37:]
	if len(suffix) == 0 {
		return false
	}
	for _, c := range suffix {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// StaleTempFiles lists this package's own leftover chunk files under dir:
// every entry whose name matches isTempChunkName, returned as full paths.
// Grounded on elprep's sam/split-merge.go, which calls internal.Directory
// the same way to enumerate a directory's existing per-chromosome split
// files before deciding which new ones to write; here the caller is
// expected to use the result to remove orphaned chunk files from a Sorter
// that never reached its own cleanup, typically on startup of a long-lived
// process that reuses a shared TempDir across many Sort calls.
func StaleTempFiles(dir string) ([]string, error) {
	names, err := internal.Directory(dir)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.SortError, err, "extsort: listing temp directory")
	}
	var stale []string
	for _, name := range names {
		if isTempChunkName(name) {
			stale = append(stale, filepath.Join(dir, name))
		}
	}
	return stale, nil
}

// Sort reads every record from src, sorts them under order, and writes
// them to dst in the engine's BAM container format, rewriting header's
// sort-order field to order before dst's writer emits anything.
// header's ReferenceTable and other fields are otherwise carried
// through unchanged.
func (s *Sorter) Sort(src Source, header *record.Header, order record.SortingOrder, dst io.Writer) error {
	less := record.LessFor(order)
	if less == nil {
		return engineerr.Newf(engineerr.SortError, "extsort: order %v has no comparator", order)
	}

	paths, err := s.GenerateSortedRuns(src, header, less)
	if err != nil {
		return err
	}
	s.logf("generated %d sorted run(s), merging under order %v", len(paths), order)

	header.SetSortOrder(order)
	w, err := bamio.OpenWriter(dst, s.pool, header)
	if err != nil {
		removeAll(paths)
		return engineerr.Wrap(engineerr.SortError, err, "extsort: opening output writer")
	}
	if err := s.MergeSortedRuns(paths, less, w); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	s.logf("sort complete")
	return nil
}

// GenerateSortedRuns is the sort's chunking phase: it buffers records
// from src until a chunk reaches params.RecordsPerChunk, submits the
// chunk to the pool as a job that sorts it (package psort) and spills
// it to a fresh temp file, and repeats until src is exhausted, flushing
// a final partial chunk. It returns the temp file paths written, in no
// particular order. On any chunk-job failure, it waits for all
// in-flight jobs, deletes every temp file already written, and returns
// a SortError: a chunk-write failure aborts the whole sort rather than
// continuing with a gap.
func (s *Sorter) GenerateSortedRuns(src Source, header *record.Header, less record.Less) ([]string, error) {
	var mu sync.Mutex
	var paths []string
	var firstErr error

	submit := func(chunk []*record.Record, chunkIdx int) {
		s.pool.Submit(func() {
			path, err := s.writeChunk(chunkIdx, header, less, chunk)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			paths = append(paths, path)
		})
	}

	idx := 0
	buf := make([]*record.Record, 0, s.params.RecordsPerChunk)
	for {
		rec, err := src.ReadNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.pool.WaitIdle()
			mu.Lock()
			toRemove := paths
			mu.Unlock()
			removeAll(toRemove)
			return nil, engineerr.Wrap(engineerr.SortError, err, "extsort: reading input")
		}
		buf = append(buf, rec)
		if len(buf) >= s.params.RecordsPerChunk {
			submit(buf, idx)
			idx++
			buf = make([]*record.Record, 0, s.params.RecordsPerChunk)
		}
	}
	if len(buf) > 0 {
		submit(buf, idx)
		idx++
	}

	s.pool.WaitIdle()
	if firstErr != nil {
		removeAll(paths)
		return nil, firstErr
	}
	return paths, nil
}

// writeChunk sorts chunk stably under less (tagging each record with
// its (chunkIdx, intra-chunk index) ChunkTag first, so ties survive the
// eventual merge deterministically) and spills it to a fresh temp file
// in the engine's BAM container format, xz compressing the container
// byte stream if params.CompressTemp is set.
func (s *Sorter) writeChunk(chunkIdx int, header *record.Header, less record.Less, chunk []*record.Record) (path string, err error) {
	for i, r := range chunk {
		r.SetChunkTag(record.ChunkTag{Source: chunkIdx, Index: i})
	}
	psort.StableSort(chunk, less)

	path = s.nextTempPath()
	s.logf("writing chunk %d (%d records) to %s", chunkIdx, len(chunk), path)
	f, ferr := os.Create(path)
	if ferr != nil {
		return "", engineerr.Wrap(engineerr.SortError, ferr, "extsort: creating temp chunk file")
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = engineerr.Wrap(engineerr.SortError, cerr, "extsort: closing temp chunk file")
		}
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	var dst io.Writer = f
	var xzw *xz.Writer
	if s.params.CompressTemp {
		xzw, err = xz.NewWriter(f)
		if err != nil {
			return "", engineerr.Wrap(engineerr.SortError, err, "extsort: opening temp chunk compressor")
		}
		dst = xzw
	}

	chunkPool := workerpool.New(chunkWriterPoolSize)
	defer chunkPool.Close()

	w, werr := bamio.OpenWriter(dst, chunkPool, header)
	if werr != nil {
		return "", engineerr.Wrap(engineerr.SortError, werr, "extsort: opening temp chunk writer")
	}
	for _, r := range chunk {
		if werr := w.Write(r); werr != nil {
			return "", engineerr.Wrap(engineerr.SortError, werr, "extsort: writing temp chunk record")
		}
	}
	if werr := w.Close(); werr != nil {
		return "", engineerr.Wrap(engineerr.SortError, werr, "extsort: closing temp chunk writer")
	}
	if xzw != nil {
		if werr := xzw.Close(); werr != nil {
			return "", engineerr.Wrap(engineerr.SortError, werr, "extsort: closing temp chunk compressor")
		}
	}
	return path, nil
}

// chunkReader adapts one temp chunk file to internal.Puller for the
// phase 2 merge.
type chunkReader struct {
	f  *os.File
	br *bamio.Reader
}

func (c *chunkReader) Pull() (*record.Record, error) {
	rec, err := c.br.ReadNext()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, engineerr.Wrap(engineerr.SortError, err, "extsort: reading temp chunk")
	}
	return rec, nil
}

func (c *chunkReader) Close() error {
	c.br.Close()
	return c.f.Close()
}

func (s *Sorter) openChunkReader(path string) (*chunkReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.SortError, err, "extsort: opening temp chunk")
	}
	var src io.Reader = f
	if s.params.CompressTemp {
		xzr, xerr := xz.NewReader(f)
		if xerr != nil {
			f.Close()
			return nil, engineerr.Wrap(engineerr.SortError, xerr, "extsort: opening temp chunk decompressor")
		}
		src = xzr
	}
	br, err := bamio.OpenReader(src, s.pool)
	if err != nil {
		f.Close()
		return nil, engineerr.Wrap(engineerr.SortError, err, "extsort: opening temp chunk reader")
	}
	return &chunkReader{f: f, br: br}, nil
}

// MergeSortedRuns is the sort's merge phase: it opens one reader per
// temp file in paths, multiway-merges them under less (sharing
// internal.MergeSources with package stages), writes each emitted
// record to w, and deletes every temp file once the merge completes
// or fails.
func (s *Sorter) MergeSortedRuns(paths []string, less record.Less, w *bamio.Writer) error {
	s.logf("merging %d run(s)", len(paths))
	readers := make([]*chunkReader, 0, len(paths))
	defer func() {
		for _, r := range readers {
			r.Close()
		}
		removeAll(paths)
	}()

	pullers := make([]internal.Puller, len(paths))
	for i, p := range paths {
		cr, err := s.openChunkReader(p)
		if err != nil {
			return err
		}
		readers = append(readers, cr)
		pullers[i] = cr
	}

	err := internal.MergeSources(pullers, less, func(rec *record.Record) error {
		rec.SetChunkTag(record.ChunkTag{})
		if err := w.Write(rec); err != nil {
			return engineerr.Wrap(engineerr.SortError, err, "extsort: writing merged output")
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// Package engine carries the process-wide configuration values the
// rest of the engine's packages are constructed with: parallelism, a
// temp directory, whether temp-chunk compression is on, and
// verbosity.
//
// elprep threads a handful of equivalent settings (nrThreads,
// --tmp-dir-name, --verbose) through global command-line flag
// variables read directly by deep call sites (cmd/*.go, sam/*.go).
// This engine's stage graph, prefetch reader, and external sorter must
// be constructible before any such global exists and must not observe
// it change underneath them once running, so Config is instead a
// plain value built once by the caller (a CLI front end, a test) and
// passed into every constructor that needs it.
package engine

import "runtime"

// Config is the explicit configuration threaded through stage.Graph,
// extsort.Sorter, and prefetch.Reader construction. A Config must not
// be mutated after a stage.Graph built from it starts running.
type Config struct {
	// Parallelism is the number of workers a workerpool.Pool built for
	// this run should have. Zero means "use DefaultParallelism()".
	Parallelism int

	// TempDir is the directory the external sorter spills chunk files
	// into. Empty means "use os.TempDir()".
	TempDir string

	// CompressTemp enables xz compression of external-sort temp chunk
	// files.
	CompressTemp bool

	// Verbose enables diagnostic logging of stage-graph and sort
	// progress to the standard logger: a caller threads it into
	// stage.Graph.Verbose and extsort.Params.Verbose when constructing
	// those.
	Verbose bool

	// NoThreads forces the single-chain stage graph path: every stage
	// runs sequentially on the caller's goroutine instead of one
	// goroutine per stage.
	NoThreads bool
}

// DefaultParallelism returns the parallelism this engine uses absent
// an explicit override: the number of logical CPUs detected by the Go
// runtime.
func DefaultParallelism() int {
	return runtime.NumCPU()
}

// Workers returns c.Parallelism, or DefaultParallelism() if c is the
// zero value for that field.
func (c Config) Workers() int {
	if c.Parallelism > 0 {
		return c.Parallelism
	}
	return DefaultParallelism()
}

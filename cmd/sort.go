package cmd

import (
	"io"
	"os"

	"github.com/readflow/engine/bamio"
	"github.com/readflow/engine/engineerr"
	"github.com/readflow/engine/extsort"
	"github.com/readflow/engine/prefetch"
	"github.com/readflow/engine/record"
	"github.com/readflow/engine/workerpool"
)

// SortHelp is the help string for this subcommand.
const SortHelp = "\nsort parameters:\n" +
	"engine sort input-bam output-bam\n" +
	"[--sort-order coordinate|queryname]\n" +
	"[--records-per-chunk n]\n" +
	"[--nr-of-threads n] [--tmp-dir dir] [--compress-temp]\n"

// SortFlags is the "sort" subcommand's argument shape: reorder a BAM
// stream to Order, spilling to disk via package extsort when the
// input does not fit in memory.
type SortFlags struct {
	CommonFlags
	Input, Output   string
	Order           record.SortingOrder
	RecordsPerChunk int
}

// Run executes the sort subcommand end to end.
func (f SortFlags) Run() error {
	cfg := f.Config()
	pool := workerpool.New(cfg.Workers())
	defer pool.Close()

	in, err := os.Open(f.Input)
	if err != nil {
		return engineerr.Wrap(engineerr.IOError, err, "cmd: opening sort input")
	}
	defer in.Close()

	r, err := bamio.OpenReader(in, pool)
	if err != nil {
		return err
	}
	defer r.Close()

	src := prefetch.NewReader(r, !cfg.NoThreads, prefetch.DefaultCapacity)
	defer src.Stop()

	out, err := os.Create(f.Output)
	if err != nil {
		return engineerr.Wrap(engineerr.IOError, err, "cmd: creating sort output")
	}
	defer out.Close()

	sorter := extsort.New(extsort.Params{
		RecordsPerChunk: f.RecordsPerChunk,
		TempDir:         cfg.TempDir,
		CompressTemp:    cfg.CompressTemp,
		Verbose:         cfg.Verbose,
	}, pool)

	if err := sorter.Sort(prefetchSource{src}, r.Header(), f.Order, out); err != nil {
		return err
	}
	return out.Close()
}

// prefetchSource adapts a *prefetch.Reader's (nil, nil)-at-EOF
// contract to the io.EOF-returning Source contract extsort and bamio
// both expect.
type prefetchSource struct {
	r *prefetch.Reader
}

func (s prefetchSource) ReadNext() (*record.Record, error) {
	rec, err := s.r.Next()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, io.EOF
	}
	return rec, nil
}

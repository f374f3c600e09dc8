package cmd

import (
	"os"

	"github.com/readflow/engine/bamio"
	"github.com/readflow/engine/engineerr"
	"github.com/readflow/engine/prefetch"
	"github.com/readflow/engine/record"
	"github.com/readflow/engine/stage"
	"github.com/readflow/engine/workerpool"
)

// LocalRealignHelp is the help string for this subcommand.
const LocalRealignHelp = "\nlocalrealign parameters:\n" +
	"engine localrealign input-bam output-bam\n" +
	"[--nr-of-threads n] [--nothreads]\n"

// LocalRealignFlags is the "localrealign" subcommand's argument shape:
// a single filter stage between a reader and a writer, grounded on
// OpenGE's command_localrealign.cpp showing this as the simplest
// possible instance of the reader -> filter -> writer chain. The
// realignment step itself (adjusting a read's CIGAR and
// position against nearby indel evidence) is out of this spec's scope;
// Transform, if nil, defaults to a pass-through, so this subcommand
// exists to exercise the single-filter chain shape, not to ship a
// realigner.
type LocalRealignFlags struct {
	CommonFlags
	Input, Output string
	Transform     func(*record.Record) (*record.Record, bool, error)
}

func (f LocalRealignFlags) Run() error {
	cfg := f.Config()
	pool := workerpool.New(cfg.Workers())
	defer pool.Close()

	in, err := os.Open(f.Input)
	if err != nil {
		return engineerr.Wrap(engineerr.IOError, err, "cmd: opening localrealign input")
	}
	defer in.Close()
	r, err := bamio.OpenReader(in, pool)
	if err != nil {
		return err
	}
	defer r.Close()

	pf := prefetch.NewReader(r, !cfg.NoThreads, prefetch.DefaultCapacity)
	defer pf.Stop()

	out, err := os.Create(f.Output)
	if err != nil {
		return engineerr.Wrap(engineerr.IOError, err, "cmd: creating localrealign output")
	}
	defer out.Close()
	w, err := bamio.OpenWriter(out, pool, r.Header())
	if err != nil {
		return err
	}

	transform := f.Transform
	if transform == nil {
		transform = func(rec *record.Record) (*record.Record, bool, error) { return rec, true, nil }
	}

	g := stage.NewGraph()
	g.Verbose = cfg.Verbose
	src := stage.NewSource(prefetchSource{pf}.ReadNext, r.Header())
	filt := stage.NewFilter(stage.DefaultQueueCapacity, transform)
	sink := stage.NewSink(stage.DefaultQueueCapacity, w.Write, w.Close)

	if err := g.Connect(src, filt); err != nil {
		return err
	}
	if err := g.Connect(filt, sink); err != nil {
		return err
	}

	return g.RunChain(cfg.NoThreads)
}

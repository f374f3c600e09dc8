package cmd

import (
	"os"

	"github.com/readflow/engine/bamio"
	"github.com/readflow/engine/engineerr"
	"github.com/readflow/engine/prefetch"
	"github.com/readflow/engine/record"
	"github.com/readflow/engine/stage"
	"github.com/readflow/engine/stages"
	"github.com/readflow/engine/workerpool"
)

// BpipeHelp is the help string for this subcommand.
const BpipeHelp = "\nbpipe parameters:\n" +
	"engine bpipe input-bam output-bam\n" +
	"[--partitions n]\n" +
	"[--nr-of-threads n] [--nothreads]\n"

// BpipeFlags composes the general reader -> splitter -> N parallel
// per-partition filter stages -> sorted-merger -> writer shape.
// OpenGE's command_bpipe.cpp composes exactly this shape for its own
// pipeline launcher, which is why stages.Splitter and
// stages.SortedMerger are built generic enough to host an arbitrary
// NewFilter rather than one hardcoded to duplicate marking:
// DedupFlags.Run is implemented as one call into this type with Key
// and NewFilter set to dedup's own key and filter.
type BpipeFlags struct {
	CommonFlags
	Input, Output string
	Partitions    int
	Key           stages.KeyFunc
	NewFilter     func() func(*record.Record) (*record.Record, bool, error)
}

func (f BpipeFlags) Run() error {
	cfg := f.Config()
	if f.Partitions <= 0 {
		f.Partitions = cfg.Workers()
	}
	key := f.Key
	if key == nil {
		key = stages.ByReferenceID
	}
	newFilter := f.NewFilter
	if newFilter == nil {
		newFilter = func() func(*record.Record) (*record.Record, bool, error) {
			return func(rec *record.Record) (*record.Record, bool, error) { return rec, true, nil }
		}
	}

	pool := workerpool.New(cfg.Workers())
	defer pool.Close()

	in, err := os.Open(f.Input)
	if err != nil {
		return engineerr.Wrap(engineerr.IOError, err, "cmd: opening bpipe input")
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
		return engineerr.Wrap(engineerr.IOError, err, "cmd: creating bpipe output")
	}
	defer out.Close()
	w, err := bamio.OpenWriter(out, pool, r.Header())
	if err != nil {
		return err
	}

	g := stage.NewGraph()
	g.Verbose = cfg.Verbose
	src := stage.NewSource(prefetchSource{pf}.ReadNext, r.Header())
	split := stages.NewSplitter(stage.DefaultQueueCapacity, key)
	if err := g.Connect(src, split); err != nil {
		return err
	}

	merger := stages.NewSortedMerger(record.CoordinateLess, stage.DefaultQueueCapacity)
	for i := 0; i < f.Partitions; i++ {
		filt := stage.NewFilter(stage.DefaultQueueCapacity, newFilter())
		if err := g.Connect(split, filt); err != nil {
			return err
		}
		if err := g.Connect(filt, merger); err != nil {
			return err
		}
	}

	sink := stage.NewSink(stage.DefaultQueueCapacity, w.Write, w.Close)
	if err := g.Connect(merger, sink); err != nil {
		return err
	}

	return g.RunChain(cfg.NoThreads)
}

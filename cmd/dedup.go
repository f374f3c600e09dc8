package cmd

import (
	"github.com/readflow/engine/record"
	"github.com/readflow/engine/stages"
)

// DedupHelp is the help string for this subcommand.
const DedupHelp = "\ndedup parameters:\n" +
	"engine dedup input-bam output-bam\n" +
	"[--partitions n]\n" +
	"[--nr-of-threads n] [--nothreads]\n"

// DedupFlags is the "dedup" subcommand's argument shape: a reader
// feeds a Splitter that fans records out by reference id across
// Partitions independent duplicate-marking filter stages, whose output
// is merged back into one coordinate-ordered stream by a SortedMerger
// before being written out. OpenGE's command_dedup.cpp confirms dedup
// is one instance of the same reader/splitter/filter/merger/writer
// shape BpipeFlags composes generically.
//
// The duplicate key used here -- (reference id, position, strand) --
// is a simplified stand-in for Picard-style fragment/library grouping;
// this subcommand exists to exercise the splitter/filter/merger
// composition, not to reproduce a validated duplicate-marking
// algorithm.
type DedupFlags struct {
	CommonFlags
	Input, Output string
	Partitions    int
}

func (f DedupFlags) Run() error {
	return BpipeFlags{
		CommonFlags: f.CommonFlags,
		Input:       f.Input,
		Output:      f.Output,
		Partitions:  f.Partitions,
		Key:         stages.ByReferenceID,
		NewFilter:   dedupTransform,
	}.Run()
}

// dedupTransform returns a fresh per-partition filter: the first
// record seen at a given (RefID, Pos, reverse-strand) key passes
// through untouched; every later record at the same key is marked
// FlagDuplicate.
func dedupTransform() func(*record.Record) (*record.Record, bool, error) {
	seen := make(map[dedupKey]bool)
	return func(rec *record.Record) (*record.Record, bool, error) {
		if rec.IsUnmapped() {
			return rec, true, nil
		}
		key := dedupKey{refID: rec.RefID, pos: rec.Pos, reverse: rec.IsReverse()}
		if seen[key] {
			rec.Flag |= record.FlagDuplicate
		} else {
			seen[key] = true
		}
		return rec, true, nil
	}
}

type dedupKey struct {
	refID   int32
	pos     int32
	reverse bool
}

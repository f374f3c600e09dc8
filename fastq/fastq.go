// Package fastq pairs up the two mates of a read pair as they arrive
// (in whatever order a stage graph happens to deliver them) and
// exports each pair's sequence and quality lines in FASTQ format,
// reverse-complementing whichever mate aligned to the reverse strand
// so both mates of a pair are written in the same (forward)
// orientation.
//
// Grounded 1:1 on original_source/openge/src/util/fastq_writer.cpp's
// FastqWriter: its potential_pairs map keyed by read name is this
// package's PairBuffer, its compliment function is ReverseComplement,
// and its SaveAlignment/Close are Exporter.Export/Close. OpenGE writes
// straight to three std::ofstream objects (or three aliases of cout
// for the combined "stdout" case); this package takes three
// io.Writers instead, via Targets.
package fastq

import (
	"fmt"
	"io"

	"github.com/readflow/engine/engineerr"
	"github.com/readflow/engine/record"
)

// Targets names the three FASTQ destinations an Exporter writes to:
// Forward for /1 reads, Reverse for /2 reads, Orphan for any read
// whose mate is never seen before Close. If Combined is true, Forward
// is used for every record unchanged (no pairing, no /1 or /2 suffix,
// no revcomp) -- OpenGE's "stdout" special case, where all three
// streams alias one combined stream.
type Targets struct {
	Combined bool
	Forward  io.Writer
	Reverse  io.Writer
	Orphan   io.Writer
}

// pending is what PairBuffer holds for a read name seen exactly once
// so far: OpenGE's fastq_record_t.
type pending struct {
	seq  string
	qual string
}

// PairBuffer is OpenGE's potential_pairs map, given its own type: at
// most one entry per read name, holding the first mate of a pair seen
// so far until its partner arrives (Offer) or the stream ends (Drain).
type PairBuffer struct {
	waiting map[string]pending
}

// NewPairBuffer returns an empty PairBuffer.
func NewPairBuffer() *PairBuffer {
	return &PairBuffer{waiting: make(map[string]pending)}
}

// Offer records seq/qual as the first-seen mate for name, returning
// ok == false, or, if name was already waiting, removes and returns
// that earlier mate with ok == true so the caller can complete the
// pair.
func (b *PairBuffer) Offer(name, seq, qual string) (p pending, ok bool) {
	if p, found := b.waiting[name]; found {
		delete(b.waiting, name)
		return p, true
	}
	b.waiting[name] = pending{seq: seq, qual: qual}
	return pending{}, false
}

// Drain empties the buffer, calling fn once per still-unpaired read in
// no particular order, for the end-of-stream orphan flush.
func (b *PairBuffer) Drain(fn func(name, seq, qual string) error) error {
	for name, p := range b.waiting {
		if err := fn(name, p.seq, p.qual); err != nil {
			return err
		}
	}
	b.waiting = make(map[string]pending)
	return nil
}

// Exporter pairs up mates by read name (via PairBuffer) and writes
// completed pairs (and, at Close, any orphan) to its Targets.
type Exporter struct {
	targets Targets
	pairs   *PairBuffer
}

// NewExporter returns an Exporter writing to targets.
func NewExporter(targets Targets) *Exporter {
	return &Exporter{targets: targets, pairs: NewPairBuffer()}
}

// Export is the per-record step: in combined mode it writes rec
// immediately; otherwise, the first mate of a pair is
// buffered under its name and the second mate completes the pair,
// reverse-complementing whichever of the two aligned to the reverse
// strand and writing both as name/1 and name/2 to Forward and Reverse
// respectively.
func (e *Exporter) Export(rec *record.Record) error {
	seq, err := rec.EnsureSeq()
	if err != nil {
		return engineerr.Wrap(engineerr.IOError, err, "fastq: materializing sequence")
	}
	qual, err := rec.EnsureQual()
	if err != nil {
		return engineerr.Wrap(engineerr.IOError, err, "fastq: materializing quality")
	}

	if e.targets.Combined {
		return writeRecord(e.targets.Forward, rec.Name, seq, qual)
	}

	buffered, found := e.pairs.Offer(rec.Name, seq, qual)
	if !found {
		return nil
	}

	fwdSeq, fwdQual, revSeq, revQual := seq, qual, buffered.seq, buffered.qual
	if rec.IsReverse() {
		fwdSeq, fwdQual, revSeq, revQual = buffered.seq, buffered.qual, seq, qual
	}
	revSeq, revQual = ReverseComplement(revSeq), reverseString(revQual)

	if err := writeRecord(e.targets.Forward, rec.Name+"/1", fwdSeq, fwdQual); err != nil {
		return err
	}
	return writeRecord(e.targets.Reverse, rec.Name+"/2", revSeq, revQual)
}

// Close flushes every still-unpaired read to Orphan at end of stream.
func (e *Exporter) Close() error {
	if e.targets.Combined {
		return nil
	}
	return e.pairs.Drain(func(name, seq, qual string) error {
		return writeRecord(e.targets.Orphan, name, seq, qual)
	})
}

func writeRecord(w io.Writer, name, seq, qual string) error {
	if _, err := fmt.Fprintf(w, "@%s\n%s\n+%s\n%s\n", name, seq, name, qual); err != nil {
		return engineerr.Wrap(engineerr.IOError, err, "fastq: writing record")
	}
	return nil
}

// ReverseComplement returns seq reversed and base-complemented
// (A<->T, C<->G, case preserved), passing through any other byte
// (N, n, ambiguity codes) unchanged in position only.
func ReverseComplement(seq string) string {
	n := len(seq)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = complementBase(seq[i])
	}
	return string(out)
}

func complementBase(b byte) byte {
	switch b {
	case 'A':
		return 'T'
	case 'C':
		return 'G'
	case 'G':
		return 'C'
	case 'T':
		return 'A'
	case 'a':
		return 't'
	case 'c':
		return 'g'
	case 'g':
		return 'c'
	case 't':
		return 'a'
	default:
		return b
	}
}

func reverseString(s string) string {
	n := len(s)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = s[i]
	}
	return string(out)
}

// Package record defines the in-memory representation of a single
// sequencing alignment record and its supporting types: the reference
// table, the textual header, CIGAR operations, and the sort-key
// comparators used throughout the engine.
package record

import (
	"github.com/readflow/engine/utils"
)

// Unmapped is the reference id used by a Record that did not align to
// any reference sequence.
const Unmapped = int32(-1)

// Flag bits for Record.Flag. See the SAM specification, section 1.4.
const (
	FlagPaired        = 0x1
	FlagProperPair    = 0x2
	FlagUnmapped      = 0x4
	FlagMateUnmapped  = 0x8
	FlagReverse       = 0x10
	FlagMateReverse   = 0x20
	FlagFirstInPair   = 0x40
	FlagLastInPair    = 0x80
	FlagSecondary     = 0x100
	FlagQCFail        = 0x200
	FlagDuplicate     = 0x400
	FlagSupplementary = 0x800
)

// A Record represents one sequencing alignment: its name, its position
// on a reference sequence (if mapped), its mapping quality, its CIGAR
// operations, its query sequence and base qualities, its mate
// information, and an opaque auxiliary tag blob.
//
// A Record is a single-owner value as it moves through the stage graph:
// a stage either drops it, mutates it in place, or forwards it to
// exactly one sink.
type Record struct {
	Name  string
	RefID int32 // Unmapped if the record is not aligned to a reference
	Pos   int32 // 0-based
	MapQ  byte
	Flag  uint16
	Cigar []CigarOp

	Seq  string // over ACGTN, case preserved
	Qual string // same length as Seq if Seq is non-empty

	MateRefID int32
	MatePos   int32
	TLen      int32

	Aux utils.SmallMap

	support Support
	chunk   ChunkTag
}

// IsPaired reports whether the record is part of a read pair.
func (r *Record) IsPaired() bool { return r.Flag&FlagPaired != 0 }

// IsProperPair reports whether the record is part of a properly
// oriented and spaced read pair.
func (r *Record) IsProperPair() bool { return r.Flag&FlagProperPair != 0 }

// IsUnmapped reports whether the record is unmapped.
func (r *Record) IsUnmapped() bool { return r.Flag&FlagUnmapped != 0 }

// IsMateUnmapped reports whether the record's mate is unmapped.
func (r *Record) IsMateUnmapped() bool { return r.Flag&FlagMateUnmapped != 0 }

// IsReverse reports whether the record aligned to the reverse strand.
func (r *Record) IsReverse() bool { return r.Flag&FlagReverse != 0 }

// IsMateReverse reports whether the record's mate aligned to the
// reverse strand.
func (r *Record) IsMateReverse() bool { return r.Flag&FlagMateReverse != 0 }

// IsFirstInPair reports whether this is the first record in a pair.
func (r *Record) IsFirstInPair() bool { return r.Flag&FlagFirstInPair != 0 }

// IsLastInPair reports whether this is the second record in a pair.
func (r *Record) IsLastInPair() bool { return r.Flag&FlagLastInPair != 0 }

// IsSecondary reports whether the record is a secondary alignment.
func (r *Record) IsSecondary() bool { return r.Flag&FlagSecondary != 0 }

// IsDuplicate reports whether the record is flagged as a duplicate.
func (r *Record) IsDuplicate() bool { return r.Flag&FlagDuplicate != 0 }

// Support returns the lazy-materialization source attached to this
// record, or nil if the record's character fields are already fully
// materialized.
func (r *Record) Support() Support { return r.support }

// SetSupport attaches a lazy-materialization source to this record.
func (r *Record) SetSupport(s Support) { r.support = s }

// ChunkTag returns the (source index, intra-chunk index) pair attached
// to this record by the external sorter at spill time, used to
// deterministically break ties between records that otherwise compare
// equal under a sort comparator.
func (r *Record) ChunkTag() ChunkTag { return r.chunk }

// SetChunkTag attaches a ChunkTag to this record.
func (r *Record) SetChunkTag(t ChunkTag) { r.chunk = t }

// ChunkTag deterministically breaks ties between records that compare
// equal under a sort comparator, per the external sorter's stability
// requirement: (source index, intra-chunk index).
type ChunkTag struct {
	Source int
	Index  int
}

// Less reports whether t sorts before o as a tie-break.
func (t ChunkTag) Less(o ChunkTag) bool {
	if t.Source != o.Source {
		return t.Source < o.Source
	}
	return t.Index < o.Index
}

// A Reference describes one entry of a ReferenceTable: a reference
// sequence name and its length in bases.
type Reference struct {
	Name   string
	Length int32
}

// A ReferenceTable is the ordered sequence of references a Header
// carries. It is immutable once a reader has opened its input: record
// reference ids are offsets into this slice, or Unmapped.
type ReferenceTable []Reference

// Name returns the name of the reference at id, or "*" if id is
// Unmapped or out of range.
func (t ReferenceTable) Name(id int32) string {
	if id == Unmapped || int(id) >= len(t) || id < 0 {
		return "*"
	}
	return t[id].Name
}

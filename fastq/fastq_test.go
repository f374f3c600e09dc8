package fastq

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/readflow/engine/record"
)

func TestReverseComplementPreservesCase(t *testing.T) {
	got := ReverseComplement("ACGTacgtN")
	want := "NacgtACGT"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

// A forward/reverse mate pair completes into one /1 and one /2 record,
// the reverse mate written reverse-complemented.
func TestExportCompletesPair(t *testing.T) {
	var fwd, rev, orphan bytes.Buffer
	e := NewExporter(Targets{Forward: &fwd, Reverse: &rev, Orphan: &orphan})

	first := &record.Record{Name: "r1", Seq: "ACGT", Qual: "IIII", Flag: 0}
	second := &record.Record{Name: "r1", Seq: "ACGT", Qual: "JJJJ", Flag: record.FlagReverse}

	require.NoError(t, e.Export(first))
	require.Zero(t, fwd.Len(), "nothing should be written before the mate arrives")
	require.Zero(t, rev.Len(), "nothing should be written before the mate arrives")
	require.NoError(t, e.Export(second))
	require.NoError(t, e.Close())

	require.Equal(t, "@r1/1\nACGT\n+r1/1\nIIII\n", fwd.String())
	require.Equal(t, "@r1/2\nACGT\n+r1/2\nJJJJ\n", rev.String())
	require.Zero(t, orphan.Len(), "no orphan expected")
}

// A read whose mate never arrives is flushed to Orphan at Close.
func TestExportFlushesOrphanAtClose(t *testing.T) {
	var fwd, rev, orphan bytes.Buffer
	e := NewExporter(Targets{Forward: &fwd, Reverse: &rev, Orphan: &orphan})

	require.NoError(t, e.Export(&record.Record{Name: "lonely", Seq: "GGCC", Qual: "!!!!"}))
	require.NoError(t, e.Close())
	require.Equal(t, "@lonely\nGGCC\n+lonely\n!!!!\n", orphan.String())
}

// Combined targets write every record straight through with no
// pairing, no suffix, and no revcomp.
func TestExportCombinedWritesImmediately(t *testing.T) {
	var out bytes.Buffer
	e := NewExporter(Targets{Combined: true, Forward: &out})

	require.NoError(t, e.Export(&record.Record{Name: "x", Seq: "TT", Qual: "##", Flag: record.FlagReverse}))
	require.Contains(t, out.String(), "@x\nTT\n+x\n##\n")
}

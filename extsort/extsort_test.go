package extsort

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/readflow/engine/bamio"
	"github.com/readflow/engine/record"
	"github.com/readflow/engine/utils"
	"github.com/readflow/engine/workerpool"
)

type memSource struct {
	recs   []*record.Record
	i      int
	failAt int
}

func (m *memSource) ReadNext() (*record.Record, error) {
	if m.failAt >= 0 && m.i == m.failAt {
		return nil, errors.New("injected read failure")
	}
	if m.i >= len(m.recs) {
		return nil, io.EOF
	}
	r := m.recs[m.i]
	m.i++
	return r, nil
}

func testHeader() *record.Header {
	h := record.NewHeader()
	h.SQ = []utils.StringMap{{"SN": "chr1", "LN": "1000"}}
	if err := h.SyncReferences(); err != nil {
		panic(err)
	}
	return h
}

func makeUnsorted(n int) []*record.Record {
	recs := make([]*record.Record, n)
	for i := range recs {
		recs[i] = &record.Record{
			Name:  "r",
			RefID: 0,
			Pos:   int32((n - i) % 997),
		}
	}
	return recs
}

// Scenario S3's shape at a scale a unit test can afford: with enough
// records for two full chunks and a partial third, GenerateSortedRuns must
// produce exactly 3 temp files, all deleted again once the sort
// completes.
func TestExternalSortChunkCount(t *testing.T) {
	dir := t.TempDir()
	pool := workerpool.New(4)
	defer pool.Close()

	s := New(Params{RecordsPerChunk: 10, TempDir: dir}, pool)
	src := &memSource{recs: makeUnsorted(21), failAt: -1}

	header := testHeader()
	paths, err := s.GenerateSortedRuns(src, header, record.CoordinateLess)
	require.NoError(t, err)
	require.Len(t, paths, 3)

	var out bytes.Buffer
	header.SetSortOrder(record.Coordinate)
	w, err := bamio.OpenWriter(&out, pool, header)
	require.NoError(t, err)
	require.NoError(t, s.MergeSortedRuns(paths, record.CoordinateLess, w))
	require.NoError(t, w.Close())

	for _, p := range paths {
		_, err := os.Stat(p)
		require.True(t, os.IsNotExist(err), "temp file %s not deleted after merge", p)
	}

	r, err := bamio.OpenReader(&out, pool)
	require.NoError(t, err)
	defer r.Close()
	var prev *record.Record
	count := 0
	for {
		rec, err := r.ReadNext()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if prev != nil {
			require.False(t, record.CoordinateLess(rec, prev), "output not sorted: %+v before %+v", rec, prev)
		}
		prev = rec
		count++
	}
	require.Equal(t, 21, count)
}

// On a read failure during chunking, GenerateSortedRuns must abort
// and leave no temp files behind.
func TestExternalSortAbortsAndCleansUpOnReadError(t *testing.T) {
	dir := t.TempDir()
	pool := workerpool.New(2)
	defer pool.Close()

	s := New(Params{RecordsPerChunk: 5, TempDir: dir}, pool)
	src := &memSource{recs: makeUnsorted(12), failAt: 8}

	_, err := s.GenerateSortedRuns(src, testHeader(), record.CoordinateLess)
	require.Error(t, err)

	entries, rerr := os.ReadDir(dir)
	require.NoError(t, rerr)
	require.Empty(t, entries)
}

// A relative TempDir must come out of withDefaults as an absolute path,
// so a later working-directory change can never shift where chunk files
// land mid-sort.
func TestParamsWithDefaultsResolvesRelativeTempDir(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)

	p := Params{TempDir: "."}.withDefaults()
	require.True(t, filepath.IsAbs(p.TempDir))
	require.Equal(t, cwd, p.TempDir)
}

// StaleTempFiles must find a Sorter's own chunk files left behind by a
// run that never reached MergeSortedRuns' cleanup, and must ignore files
// that merely happen to share the temp directory.
func TestStaleTempFiles(t *testing.T) {
	dir := t.TempDir()
	pool := workerpool.New(2)
	defer pool.Close()

	s := New(Params{RecordsPerChunk: 5, TempDir: dir}, pool)
	src := &memSource{recs: makeUnsorted(12), failAt: -1}
	paths, err := s.GenerateSortedRuns(src, testHeader(), record.CoordinateLess)
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	unrelated := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("hi"), 0o644))

	stale, err := StaleTempFiles(dir)
	require.NoError(t, err)
	require.ElementsMatch(t, paths, stale)

	removeAll(paths)
}

package bamio

import (
	"encoding/binary"
	"io"

	"github.com/readflow/engine/bgzf"
	"github.com/readflow/engine/engineerr"
	"github.com/readflow/engine/internal"
	"github.com/readflow/engine/record"
	"github.com/readflow/engine/workerpool"
)

func readInt32(r io.Reader) (int32, error) {
	var v int32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, engineerr.Wrap(engineerr.TruncatedStream, err, "bamio: reading int32")
	}
	return v, nil
}

func writeInt32(w io.Writer, v int32) error {
	if err := binary.Write(w, binary.LittleEndian, v); err != nil {
		return engineerr.Wrap(engineerr.IOError, err, "bamio: writing int32")
	}
	return nil
}

// A Reader decodes a BAM stream record by record: the textual header
// and reference dictionary on open, then one record.Record per
// ReadNext call.
//
// Grounded on elprep's bamReader (sam/bam-files.go), generalized from
// elprep's pargo-pipeline-driven Fetch/Data protocol to a plain
// pull-based ReadNext, since the engine's own stage graph (package
// stage) supplies the concurrency a codec reader runs under.
type Reader struct {
	bgzf   *bgzf.Reader
	header *record.Header
}

// OpenReader opens a BAM stream read from src, decompressing BGZF
// blocks on pool, and parses its header.
func OpenReader(src io.Reader, pool *workerpool.Pool) (*Reader, error) {
	bz := bgzf.NewReader(src, pool, 8)
	hdr, err := readTextHeader(bz)
	if err != nil {
		bz.Close()
		return nil, err
	}
	return &Reader{bgzf: bz, header: hdr}, nil
}

// Header returns the header parsed when r was opened.
func (r *Reader) Header() *record.Header { return r.header }

// ReadNext decodes the next record.Record from the stream. It returns
// io.EOF once the stream is exhausted.
func (r *Reader) ReadNext() (*record.Record, error) {
	blockSize, err := readInt32(r.bgzf)
	if err != nil {
		if engineerr.Is(err, engineerr.TruncatedStream) {
			return nil, io.EOF
		}
		return nil, err
	}
	buf := make([]byte, blockSize)
	if _, err := io.ReadFull(r.bgzf, buf); err != nil {
		return nil, engineerr.Wrap(engineerr.TruncatedStream, err, "bamio: reading alignment record body")
	}
	return decodeAlignment(buf, r.header.References)
}

// Close releases the underlying BGZF reader. It does not close the
// original source.
func (r *Reader) Close() error {
	return r.bgzf.Close()
}

// A Writer encodes a header and a stream of record.Record values as a
// BAM stream.
//
// Grounded on elprep's bamWriter (sam/bam-files.go).
type Writer struct {
	bgzf       *bgzf.Writer
	references record.ReferenceTable
	dictTable  map[string]int32
}

// OpenWriter opens a BAM stream writing to dst, compressing BGZF
// blocks on pool, and writes hdr's header block immediately.
func OpenWriter(dst io.Writer, pool *workerpool.Pool, hdr *record.Header) (*Writer, error) {
	bz := bgzf.NewWriter(dst, pool, 8)
	if err := writeTextHeader(bz, hdr); err != nil {
		bz.Close()
		return nil, err
	}
	dict := make(map[string]int32, len(hdr.References))
	for i, ref := range hdr.References {
		dict[ref.Name] = int32(i)
	}
	return &Writer{bgzf: bz, references: hdr.References, dictTable: dict}, nil
}

// Write encodes rec and appends it to the stream. The encoding scratch
// buffer is drawn from internal's byte-buffer pool and returned to it once
// bgzf.Write has copied the body into the current block: a Writer emits one
// record body at a time, so the buffer never has two encodings live at once.
func (w *Writer) Write(rec *record.Record) error {
	buf := internal.ReserveByteBuffer()
	body, err := encodeAlignment(rec, buf)
	if err != nil {
		internal.ReleaseByteBuffer(buf)
		return err
	}
	defer internal.ReleaseByteBuffer(body)
	if err := writeInt32(w.bgzf, int32(len(body))); err != nil {
		return err
	}
	if _, err := w.bgzf.Write(body); err != nil {
		return engineerr.Wrap(engineerr.IOError, err, "bamio: writing alignment record body")
	}
	return nil
}

// Close flushes and closes the underlying BGZF writer, appending the
// BGZF end-of-file marker.
func (w *Writer) Close() error {
	return w.bgzf.Close()
}

package bgzf

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"

	"github.com/readflow/engine/engineerr"
	"github.com/readflow/engine/workerpool"
)

// bcExtraPrefix is the fixed first 4 bytes of the 6-byte gzip extra
// field BGZF writes into every block: SI1='B', SI2='C', SLEN=2. The
// 2-byte BSIZE that completes the field is written separately, once
// the block's total size is known.
var bcExtraPrefix = []byte{'B', 'C', 0x02, 0x00}

// Writer buffers uncompressed bytes into BGZF blocks and compresses
// them on pool, one job per block, while still writing compressed
// blocks to the underlying stream in the order they were produced.
//
// Grounded on elprep's utils/bgzf/bgzf-files.go writer-side bytesBlock
// type, generalized onto workerpool.Pool and
// github.com/klauspost/compress/flate.
type Writer struct {
	dst  io.Writer
	pool *workerpool.Pool

	buf bytes.Buffer

	pending chan chan *block
	writeWg sync.WaitGroup
	writeErr error
	writeErrOnce sync.Once
	closed  bool
}

// NewWriter returns a Writer that compresses blocks on pool and writes
// them to dst. window bounds how many blocks may be compressing
// concurrently before Write starts blocking.
func NewWriter(dst io.Writer, pool *workerpool.Pool, window int) *Writer {
	if window <= 0 {
		window = 1
	}
	w := &Writer{
		dst:     dst,
		pool:    pool,
		pending: make(chan chan *block, window),
	}
	w.writeWg.Add(1)
	go w.drain()
	return w
}

// drain runs in its own goroutine, writing compressed blocks to dst in
// the order they were submitted, regardless of the order in which the
// pool finishes compressing them.
func (w *Writer) drain() {
	defer w.writeWg.Done()
	for ch := range w.pending {
		blk := <-ch
		if blk.err != nil {
			w.setWriteErr(blk.err)
			continue
		}
		if _, err := w.dst.Write(blk.compressed); err != nil {
			w.setWriteErr(engineerr.Wrap(engineerr.IOError, err, "bgzf: writing block"))
		}
	}
}

func (w *Writer) setWriteErr(err error) {
	w.writeErrOnce.Do(func() { w.writeErr = err })
}

// Write implements io.Writer, buffering p and flushing full blocks as
// they accumulate.
func (w *Writer) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		room := MaxBlockSize - w.buf.Len()
		n := len(p)
		if n > room {
			n = room
		}
		w.buf.Write(p[:n])
		p = p[n:]
		total += n
		if w.buf.Len() == MaxBlockSize {
			if err := w.flushBlock(); err != nil {
				return total, err
			}
		}
	}
	return total, w.currentWriteErr()
}

func (w *Writer) currentWriteErr() error {
	w.writeErrOnce.Do(func() {})
	return w.writeErr
}

// flushBlock submits the current buffer as one compression job and
// resets the buffer for the next block.
func (w *Writer) flushBlock() error {
	if err := w.currentWriteErr(); err != nil {
		return err
	}
	if w.buf.Len() == 0 {
		return nil
	}
	data := make([]byte, w.buf.Len())
	copy(data, w.buf.Bytes())
	w.buf.Reset()

	ch := make(chan *block, 1)
	w.pending <- ch
	w.pool.Submit(func() {
		compressed, err := deflateBlock(data)
		ch <- &block{compressed: compressed, err: err}
	})
	return nil
}

// Flush forces any buffered bytes out as a (possibly short) block.
func (w *Writer) Flush() error {
	return w.flushBlock()
}

// Close flushes any remaining buffered bytes, waits for all pending
// blocks to be written, appends the BGZF end-of-file marker, and
// returns the first error encountered, if any. Close does not close
// the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return w.currentWriteErr()
	}
	w.closed = true
	if err := w.flushBlock(); err != nil {
		close(w.pending)
		w.writeWg.Wait()
		return err
	}
	close(w.pending)
	w.writeWg.Wait()
	if err := w.currentWriteErr(); err != nil {
		return err
	}
	if _, err := w.dst.Write(eofMarker); err != nil {
		return engineerr.Wrap(engineerr.IOError, err, "bgzf: writing EOF marker")
	}
	return nil
}

// deflateBlock compresses one uncompressed block payload into a full
// BGZF block: gzip member header with a BC extra subfield, the
// deflate stream, and a CRC32/ISIZE trailer.
func deflateBlock(data []byte) ([]byte, error) {
	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.ResourceError, err, "bgzf: creating deflate writer")
	}
	if _, err := fw.Write(data); err != nil {
		return nil, engineerr.Wrap(engineerr.IOError, err, "bgzf: compressing block")
	}
	if err := fw.Close(); err != nil {
		return nil, engineerr.Wrap(engineerr.IOError, err, "bgzf: finishing deflate stream")
	}

	var out bytes.Buffer
	out.Write([]byte{0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff})
	binary.Write(&out, binary.LittleEndian, uint16(6)) // XLEN: BC subfield is 6 bytes total
	out.Write(bcExtraPrefix)

	totalSize := out.Len() + 2 /* BSIZE */ + compressed.Len() + 8 /* crc+isize */
	binary.Write(&out, binary.LittleEndian, uint16(totalSize-1))
	out.Write(compressed.Bytes())
	binary.Write(&out, binary.LittleEndian, crc32.ChecksumIEEE(data))
	binary.Write(&out, binary.LittleEndian, uint32(len(data)))

	if out.Len() != totalSize {
		return nil, engineerr.New(engineerr.ResourceError, "bgzf: internal block size mismatch")
	}
	return out.Bytes(), nil
}

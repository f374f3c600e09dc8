package bgzf

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/readflow/engine/engineerr"
	"github.com/readflow/engine/workerpool"
)

// gzipHeaderSize is the fixed portion of a gzip member header before
// any extra field: ID1, ID2, CM, FLG, MTIME(4), XFL, OS.
const gzipHeaderSize = 10

// Reader decompresses a BGZF stream block by block, dispatching the
// decompression of each block to pool so that many blocks can be
// inflating concurrently while Read still sees them in their original
// order.
//
// Grounded on elprep's utils/bgzf/bgzf-files.go Reader/internalReader,
// generalized from a dedicated pargo pipeline onto workerpool.Pool.
type Reader struct {
	src    io.Reader
	pool   *workerpool.Pool
	window int // number of blocks kept in flight at once

	pending chan chan *block // ordered queue of not-yet-delivered blocks
	readErr error            // sticky error from the sequential read loop
	done    chan struct{}

	cur    *block
	curOff int
	eof    bool
}

// NewReader returns a Reader pulling compressed blocks from src and
// decompressing them on pool. window bounds how many blocks may be
// in flight (read but not yet consumed by Read) at once; a caller
// unsure what to pass can use the pool's worker count.
func NewReader(src io.Reader, pool *workerpool.Pool, window int) *Reader {
	if window <= 0 {
		window = 1
	}
	r := &Reader{
		src:     src,
		pool:    pool,
		window:  window,
		pending: make(chan chan *block, window),
		done:    make(chan struct{}),
	}
	go r.feed()
	return r
}

// feed runs in its own goroutine: it reads raw blocks off src
// sequentially (the underlying stream only supports sequential reads)
// and submits each one's decompression to the pool, publishing a
// result channel for Read to collect from in order.
func (r *Reader) feed() {
	defer close(r.pending)
	for {
		raw, isEOF, err := readRawBlock(r.src)
		if err != nil {
			ch := make(chan *block, 1)
			ch <- &block{err: err}
			select {
			case r.pending <- ch:
			case <-r.done:
			}
			return
		}
		if isEOF {
			return
		}
		ch := make(chan *block, 1)
		select {
		case r.pending <- ch:
		case <-r.done:
			return
		}
		r.pool.Submit(func() {
			data, crc, err := inflateBlock(raw)
			ch <- &block{data: data, crc32: crc, err: err}
		})
	}
}

// Close releases resources associated with r. It does not close the
// underlying source.
func (r *Reader) Close() error {
	close(r.done)
	return nil
}

// Read implements io.Reader over the decompressed byte stream.
func (r *Reader) Read(p []byte) (int, error) {
	if r.eof {
		return 0, io.EOF
	}
	total := 0
	for total < len(p) {
		if r.cur == nil || r.curOff >= len(r.cur.data) {
			blk, ok := r.next()
			if !ok {
				r.eof = true
				break
			}
			if blk.err != nil {
				return total, blk.err
			}
			r.cur = blk
			r.curOff = 0
			if len(blk.data) == 0 {
				continue
			}
		}
		n := copy(p[total:], r.cur.data[r.curOff:])
		r.curOff += n
		total += n
	}
	if total == 0 && r.eof {
		return 0, io.EOF
	}
	return total, nil
}

func (r *Reader) next() (*block, bool) {
	ch, ok := <-r.pending
	if !ok {
		return nil, false
	}
	return <-ch, true
}

// readRawBlock reads one BGZF block's framing and compressed payload
// from src, returning the whole raw block: gzip header, extra field,
// compressed deflate stream and the trailing CRC32 and uncompressed
// size. isEOF reports whether the fixed BGZF
// end-of-file marker was read instead of a data block.
func readRawBlock(src io.Reader) (raw []byte, isEOF bool, err error) {
	header := make([]byte, gzipHeaderSize)
	if _, err := io.ReadFull(src, header); err != nil {
		if err == io.EOF {
			return nil, false, engineerr.Wrap(engineerr.TruncatedStream, err, "bgzf: missing end-of-file marker")
		}
		return nil, false, engineerr.Wrap(engineerr.IOError, err, "bgzf: reading block header")
	}
	if header[0] != 0x1f || header[1] != 0x8b {
		return nil, false, engineerr.New(engineerr.MalformedRecord, "bgzf: bad gzip magic")
	}
	if header[3]&0x04 == 0 {
		return nil, false, engineerr.New(engineerr.MalformedRecord, "bgzf: block has no extra field")
	}

	var xlen uint16
	if err := binary.Read(src, binary.LittleEndian, &xlen); err != nil {
		return nil, false, engineerr.Wrap(engineerr.TruncatedStream, err, "bgzf: reading XLEN")
	}
	extra := make([]byte, xlen)
	if _, err := io.ReadFull(src, extra); err != nil {
		return nil, false, engineerr.Wrap(engineerr.TruncatedStream, err, "bgzf: reading extra field")
	}

	bsize, ok := parseBCSubfield(extra)
	if !ok {
		return nil, false, engineerr.New(engineerr.MalformedRecord, "bgzf: missing BC extra subfield")
	}

	totalBlockSize := int(bsize) + 1
	consumed := gzipHeaderSize + 2 + len(extra)
	remaining := totalBlockSize - consumed
	if remaining < 8 {
		return nil, false, engineerr.New(engineerr.MalformedRecord, "bgzf: block size smaller than its own framing")
	}
	rest := make([]byte, remaining)
	if _, err := io.ReadFull(src, rest); err != nil {
		return nil, false, engineerr.Wrap(engineerr.TruncatedStream, err, "bgzf: reading block body")
	}

	full := make([]byte, 0, consumed+remaining)
	full = append(full, header...)
	full = append(full, byte(xlen), byte(xlen>>8))
	full = append(full, extra...)
	full = append(full, rest...)
	if blockIsEOFMarker(full) {
		return nil, true, nil
	}
	return full, false, nil
}

func blockIsEOFMarker(full []byte) bool {
	if len(full) != len(eofMarker) {
		return false
	}
	for i, b := range eofMarker {
		if full[i] != b {
			return false
		}
	}
	return true
}

// parseBCSubfield scans a gzip extra field for the two-byte "BC"
// subfield BGZF uses to record a block's total on-wire size minus
// one.
func parseBCSubfield(extra []byte) (bsize uint16, ok bool) {
	for i := 0; i+4 <= len(extra); {
		si1, si2 := extra[i], extra[i+1]
		slen := int(binary.LittleEndian.Uint16(extra[i+2:]))
		i += 4
		if i+slen > len(extra) {
			return 0, false
		}
		if si1 == 'B' && si2 == 'C' && slen == 2 {
			return binary.LittleEndian.Uint16(extra[i:]), true
		}
		i += slen
	}
	return 0, false
}

// inflateBlock decompresses one full raw BGZF block (header, extra
// field, deflate stream, CRC32 trailer) and verifies its checksum.
func inflateBlock(raw []byte) (data []byte, crc uint32, err error) {
	// Locate the start of the deflate stream: fixed header + XLEN field
	// + extra field bytes.
	xlen := int(binary.LittleEndian.Uint16(raw[gzipHeaderSize:]))
	deflateStart := gzipHeaderSize + 2 + xlen
	deflateEnd := len(raw) - 8
	if deflateEnd < deflateStart {
		return nil, 0, engineerr.New(engineerr.MalformedRecord, "bgzf: malformed block framing")
	}
	trailer := raw[deflateEnd:]
	wantCRC := binary.LittleEndian.Uint32(trailer[0:4])
	wantSize := binary.LittleEndian.Uint32(trailer[4:8])

	fr := flate.NewReader(bytes.NewReader(raw[deflateStart:deflateEnd]))
	defer fr.Close()
	data = make([]byte, 0, wantSize)
	buf := make([]byte, 32*1024)
	for {
		n, rerr := fr.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, 0, engineerr.Wrap(engineerr.MalformedRecord, rerr, "bgzf: inflating block")
		}
	}
	if uint32(len(data)) != wantSize {
		return nil, 0, engineerr.New(engineerr.MalformedRecord, "bgzf: uncompressed size mismatch")
	}
	if got := crc32.ChecksumIEEE(data); got != wantCRC {
		return nil, 0, engineerr.New(engineerr.MalformedRecord, "bgzf: CRC32 mismatch")
	}
	return data, wantCRC, nil
}

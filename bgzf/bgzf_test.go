package bgzf

import (
	"bytes"
	"io"
	"testing"

	"github.com/readflow/engine/workerpool"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	pool := workerpool.New(4)
	defer pool.Close()

	var out bytes.Buffer
	w := NewWriter(&out, pool, 4)

	want := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 5000)
	if _, err := w.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := NewReader(bytes.NewReader(out.Bytes()), pool, 4)
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(want))
	}
}

func TestWriterProducesMultipleBlocksForLargeInput(t *testing.T) {
	pool := workerpool.New(2)
	defer pool.Close()

	var out bytes.Buffer
	w := NewWriter(&out, pool, 2)
	data := bytes.Repeat([]byte{0x42}, MaxBlockSize*3+17)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !bytes.HasSuffix(out.Bytes(), eofMarker) {
		t.Error("stream does not end with the BGZF EOF marker")
	}
}

func TestReaderRejectsTruncatedStream(t *testing.T) {
	pool := workerpool.New(2)
	defer pool.Close()

	var out bytes.Buffer
	w := NewWriter(&out, pool, 2)
	if _, err := w.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	truncated := out.Bytes()[:out.Len()-len(eofMarker)-2]
	r := NewReader(bytes.NewReader(truncated), pool, 2)
	defer r.Close()
	if _, err := io.ReadAll(r); err == nil {
		t.Error("expected an error reading a truncated stream")
	}
}

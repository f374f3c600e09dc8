package internal

import (
	"encoding/binary"
	"io"
)

// BinaryRead is binary.Read from reader into data, using little-endian
// byte order (the BAM wire format is always little-endian), with a panic
// in place of an error return; the panic value is the error binary.Read
// returned.
func BinaryRead(reader io.Reader, data interface{}) {
	if err := binary.Read(reader, binary.LittleEndian, data); err != nil {
		panic(err)
	}
}

// ReadFull is io.ReadFull with a panic in place of an error return.
func ReadFull(reader io.Reader, buf []byte) {
	if _, err := io.ReadFull(reader, buf); err != nil {
		panic(err)
	}
}

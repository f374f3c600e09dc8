package internal

import "sync"

// bufPool backs ReserveByteBuffer/ReleaseByteBuffer: one shared pool of
// alignment-record encoding scratch buffers, reused across records instead
// of allocated fresh for each one.
var bufPool = sync.Pool{New: func() interface{} {
	return []byte(nil)
}}

// ReserveByteBuffer returns a slice of length 0 drawn from bufPool, whose
// capacity may already be large enough to hold an encoded alignment record
// body without growing. Callers that are done with the (possibly grown)
// slice they built from it should return it with ReleaseByteBuffer.
func ReserveByteBuffer() []byte {
	return bufPool.Get().([]byte)[:0]
}

// ReleaseByteBuffer returns buf to bufPool for a later ReserveByteBuffer
// call to reuse its backing array.
func ReleaseByteBuffer(buf []byte) {
	bufPool.Put(buf)
}

package bsatn

import (
	"encoding/binary"
	"math"
)

// Writer accumulates BSATN-encoded bytes. The zero value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with buf pre-allocated to size bytes.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// WriteRaw appends b verbatim; used to splice in an already-encoded product
// field or a pre-encoded reducer-args blob.
func (w *Writer) WriteRaw(b []byte) { w.buf = append(w.buf, b...) }

// WriteBool encodes a bool as a single 0/1 byte.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// WriteU8 encodes an unsigned 8-bit integer.
func (w *Writer) WriteU8(v uint8) { w.buf = append(w.buf, v) }

// WriteI8 encodes a signed 8-bit integer.
func (w *Writer) WriteI8(v int8) { w.WriteU8(uint8(v)) }

// WriteU16 encodes an unsigned 16-bit little-endian integer.
func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteI16 encodes a signed 16-bit little-endian integer.
func (w *Writer) WriteI16(v int16) { w.WriteU16(uint16(v)) }

// WriteU32 encodes an unsigned 32-bit little-endian integer.
func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteI32 encodes a signed 32-bit little-endian integer.
func (w *Writer) WriteI32(v int32) { w.WriteU32(uint32(v)) }

// WriteU64 encodes an unsigned 64-bit little-endian integer.
func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteI64 encodes a signed 64-bit little-endian integer.
func (w *Writer) WriteI64(v int64) { w.WriteU64(uint64(v)) }

// WriteU128 encodes 16 raw little-endian bytes.
func (w *Writer) WriteU128(v [16]byte) { w.buf = append(w.buf, v[:]...) }

// WriteU256 encodes 32 raw little-endian bytes.
func (w *Writer) WriteU256(v [32]byte) { w.buf = append(w.buf, v[:]...) }

// WriteF32 encodes an IEEE-754 32-bit little-endian float.
func (w *Writer) WriteF32(v float32) { w.WriteU32(math.Float32bits(v)) }

// WriteF64 encodes an IEEE-754 64-bit little-endian float.
func (w *Writer) WriteF64(v float64) { w.WriteU64(math.Float64bits(v)) }

// WriteBytes encodes a u32-length-prefixed byte blob.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteU32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteString encodes a u32-length-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteArrayCount encodes the u32 element count prefixing an array; callers
// then write each element themselves.
func (w *Writer) WriteArrayCount(n int) { w.WriteU32(uint32(n)) }

// WriteOptionTag encodes the sum tag of an option: 0 = Some, 1 = None. This
// is the wire convention fixed by the format: tag 0 means present, which is
// the inverse of what some other encodings choose.
func (w *Writer) WriteOptionTag(some bool) {
	if some {
		w.WriteU8(0)
	} else {
		w.WriteU8(1)
	}
}

// WriteSumTag encodes the u8 variant tag prefixing a sum's payload.
func (w *Writer) WriteSumTag(tag uint8) { w.WriteU8(tag) }

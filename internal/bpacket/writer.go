package bpacket

import (
	"encoding/binary"
	"math"
)

// Writer accumulates a packet payload using the primitive encodings
// defined in spec: fixed-width little-endian integers, ULEB128-length
// strings, and Vec<T> = <i16 count><T...>.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer with a small initial capacity.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 32)}
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) WriteU8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) WriteI8(v int8)    { w.buf = append(w.buf, byte(v)) }
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteI16(v int16) { w.WriteU16(uint16(v)) }

func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteI32(v int32) { w.WriteU32(uint32(v)) }

func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteI64(v int64) { w.WriteU64(uint64(v)) }

func (w *Writer) WriteF32(v float32) {
	w.WriteU32(math.Float32bits(v))
}

func (w *Writer) WriteF64(v float64) {
	w.WriteU64(math.Float64bits(v))
}

// WriteULEB128 writes v as an unsigned LEB128 value (1-5 bytes).
func (w *Writer) WriteULEB128(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			w.buf = append(w.buf, b|0x80)
		} else {
			w.buf = append(w.buf, b)
			return
		}
	}
}

// WriteString writes the 0x00/0x0B marker string encoding.
func (w *Writer) WriteString(s string) {
	if len(s) == 0 {
		w.buf = append(w.buf, 0x00)
		return
	}
	w.buf = append(w.buf, 0x0B)
	w.WriteULEB128(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteRaw appends already-encoded bytes verbatim (used for blob/replay
// payloads whose contents the codec does not interpret).
func (w *Writer) WriteRaw(b []byte) { w.buf = append(w.buf, b...) }

// WriteI32Slice writes a Vec<i32>: <i16 count><i32...>.
func (w *Writer) WriteI32Slice(vals []int32) {
	w.WriteI16(int16(len(vals)))
	for _, v := range vals {
		w.WriteI32(v)
	}
}

// WriteMessage writes a BanchoMessage: {sender, content, target, sender_id}.
func (w *Writer) WriteMessage(m BanchoMessage) {
	w.WriteString(m.Sender)
	w.WriteString(m.Content)
	w.WriteString(m.Target)
	w.WriteI32(m.SenderID)
}

package packet

import (
	"encoding/binary"
	"math"
)

// reader is a bounds checked little-endian cursor. Once a read runs past the
// end of the buffer all following reads return zero and ok() reports false.
type reader struct {
	b   []byte
	pos int
	bad bool
}

func newReader(b []byte) *reader {
	return &reader{b: b}
}

func (r *reader) take(n int) []byte {
	if r.bad || r.pos+n > len(r.b) {
		r.bad = true
		return nil
	}
	s := r.b[r.pos : r.pos+n]
	r.pos += n
	return s
}

func (r *reader) ok() bool       { return !r.bad }
func (r *reader) remaining() int { return len(r.b) - r.pos }

func (r *reader) u8() uint8 {
	if s := r.take(1); s != nil {
		return s[0]
	}
	return 0
}

func (r *reader) i8() int8 {
	return int8(r.u8())
}

func (r *reader) u16() uint16 {
	if s := r.take(2); s != nil {
		return binary.LittleEndian.Uint16(s)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if s := r.take(4); s != nil {
		return binary.LittleEndian.Uint32(s)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if s := r.take(8); s != nil {
		return binary.LittleEndian.Uint64(s)
	}
	return 0
}

func (r *reader) f32() float32 {
	return math.Float32frombits(r.u32())
}

// writer appends little-endian values, used by the encoders
type writer struct {
	b []byte
}

func (w *writer) u8(v uint8)   { w.b = append(w.b, v) }
func (w *writer) i8(v int8)    { w.b = append(w.b, uint8(v)) }
func (w *writer) u16(v uint16) { w.b = binary.LittleEndian.AppendUint16(w.b, v) }
func (w *writer) u32(v uint32) { w.b = binary.LittleEndian.AppendUint32(w.b, v) }
func (w *writer) u64(v uint64) { w.b = binary.LittleEndian.AppendUint64(w.b, v) }
func (w *writer) f32(v float32) {
	w.u32(math.Float32bits(v))
}

func (w *writer) zeros(n int) {
	for range n {
		w.b = append(w.b, 0)
	}
}

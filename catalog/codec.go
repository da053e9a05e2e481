package catalog

import (
	"encoding/binary"

	"github.com/woqer/Database-from-Scratch/common"
)

// reader decodes little endian fields from a header payload. The first short read is remembered in err and
// every later read returns zero values, so decoders check err once at the end.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = common.NewError(common.CorruptHeaderError,
			"header truncated: need %d bytes at offset %d, have %d", n, r.off, len(r.buf))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) uint8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) uint32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) pageNum() common.PageNum {
	return common.PageNum(int32(r.uint32()))
}

func (r *reader) bytes(n int) []byte {
	if b := r.take(n); b != nil {
		return b
	}
	return make([]byte, n)
}

// string8 reads a string prefixed by its one byte length.
func (r *reader) string8() string {
	n := int(r.uint8())
	return string(r.bytes(n))
}

// writer appends little endian fields to a growing payload.
type writer struct {
	buf []byte
}

func (w *writer) uint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) pageNum(p common.PageNum) {
	w.uint32(uint32(int32(p)))
}

func (w *writer) string8(s string) {
	common.Assert(len(s) <= 255, "string too long for a one byte length")
	w.uint8(uint8(len(s)))
	w.buf = append(w.buf, s...)
}

// reserve appends n zero bytes and returns them for in-place encoding.
func (w *writer) reserve(n int) []byte {
	start := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return w.buf[start:]
}

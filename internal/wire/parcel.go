package wire

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrShortPayload indicates a read past the end of a payload buffer.
var ErrShortPayload = errors.New("wire: short payload")

// ErrBadHandleIndex indicates a payload referencing a handle table slot
// that was never written.
var ErrBadHandleIndex = errors.New("wire: bad handle table index")

// Writer flattens typed values into a payload buffer.
//
// Handles are not written inline: WriteHandle appends the capability to the
// record's handle table and writes only its index into the payload, so the
// router can rewrite capabilities without parsing payload bytes.
type Writer struct {
	buf     []byte
	handles []uint32
}

// NewWriter returns an empty payload writer.
func NewWriter() *Writer { return &Writer{} }

// LoadWriter rebuilds a writer from an already flattened payload and handle
// table, for relays that forward records they did not compose.
func LoadWriter(payload []byte, handles []uint32) *Writer {
	return &Writer{buf: payload, handles: handles}
}

// Reset clears the writer for reuse.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.handles = w.handles[:0]
}

// Len returns the current payload length in bytes.
func (w *Writer) Len() int { return len(w.buf) }

// Payload returns the flattened payload bytes.
func (w *Writer) Payload() []byte { return w.buf }

// Handles returns the handle table accumulated by WriteHandle.
func (w *Writer) Handles() []uint32 { return w.handles }

// WriteUint32 appends a fixed-width unsigned integer.
func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

// WriteInt32 appends a fixed-width signed integer.
func (w *Writer) WriteInt32(v int32) { w.WriteUint32(uint32(v)) }

// WriteUint64 appends a fixed-width unsigned integer.
func (w *Writer) WriteUint64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

// WriteInt64 appends a fixed-width signed integer.
func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

// WriteBool appends a boolean as a single byte.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// WriteFloat64 appends an IEEE 754 double.
func (w *Writer) WriteFloat64(v float64) { w.WriteUint64(math.Float64bits(v)) }

// WriteString appends a length-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.WriteUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteBytes appends a length-prefixed byte slice.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteHandle embeds a capability. The handle value is sender-local; the
// router rewrites it for the destination before dispatch.
func (w *Writer) WriteHandle(h uint32) {
	w.WriteUint32(uint32(len(w.handles)))
	w.handles = append(w.handles, h)
}

// Reader walks a payload buffer written by a Writer.
//
// Every read returns ErrShortPayload once the buffer is exhausted; a stub
// that under-reads its arguments fails deterministically instead of
// consuming garbage.
type Reader struct {
	buf     []byte
	off     int
	handles []uint32
}

// NewReader wraps a payload and its (already rewritten) handle table.
func NewReader(payload []byte, handles []uint32) *Reader {
	return &Reader{buf: payload, handles: handles}
}

// Remaining returns the number of unread payload bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Payload returns the whole underlying buffer, independent of the read
// offset.
func (r *Reader) Payload() []byte { return r.buf }

// Handles returns the rewritten handle table.
func (r *Reader) Handles() []uint32 { return r.handles }

func (r *Reader) take(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, ErrShortPayload
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// ReadUint32 reads a fixed-width unsigned integer.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadInt32 reads a fixed-width signed integer.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads a fixed-width unsigned integer.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadInt64 reads a fixed-width signed integer.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadBool reads a single-byte boolean.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.take(1)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// ReadFloat64 reads an IEEE 754 double.
func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadString reads a length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadBytes reads a length-prefixed byte slice. The result is a copy.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// ReadHandle reads an embedded capability, already rewritten to a handle
// valid in the reading process.
func (r *Reader) ReadHandle() (uint32, error) {
	idx, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	if int(idx) >= len(r.handles) {
		return 0, ErrBadHandleIndex
	}
	return r.handles[idx], nil
}

// Package wire implements the datagram codec: a bounds-checked big-endian
// encoder/decoder pair plus the fixed-layout message part header. Errors are
// sticky, in the style of a binary stream reader: once an operation
// underflows or overflows, every later operation is a no-op and Error()
// reports true.
package wire

import (
	"encoding/binary"

	"github.com/halfmoon-net/rondo/libs/ackset"
)

// Encoder writes big-endian values into a fixed buffer.
type Encoder struct {
	buf      []byte
	off      int
	overflow bool
}

// NewEncoder returns an encoder writing into buf.
func NewEncoder(buf []byte) *Encoder {
	return &Encoder{buf: buf}
}

// Error reports whether any write did not fit.
func (e *Encoder) Error() bool { return e.overflow }

// Written returns the number of bytes encoded so far.
func (e *Encoder) Written() int { return e.off }

// Remaining returns the free space left in the buffer.
func (e *Encoder) Remaining() int { return len(e.buf) - e.off }

// Mark returns the current offset, for later backfill with PutU16At.
func (e *Encoder) Mark() int { return e.off }

func (e *Encoder) PutU8(v uint8) {
	if e.overflow || e.Remaining() < 1 {
		e.overflow = true
		return
	}
	e.buf[e.off] = v
	e.off++
}

func (e *Encoder) PutU16(v uint16) {
	if e.overflow || e.Remaining() < 2 {
		e.overflow = true
		return
	}
	binary.BigEndian.PutUint16(e.buf[e.off:], v)
	e.off += 2
}

func (e *Encoder) PutU32(v uint32) {
	if e.overflow || e.Remaining() < 4 {
		e.overflow = true
		return
	}
	binary.BigEndian.PutUint32(e.buf[e.off:], v)
	e.off += 4
}

func (e *Encoder) PutBytes(b []byte) {
	if e.overflow || e.Remaining() < len(b) {
		e.overflow = true
		return
	}
	copy(e.buf[e.off:], b)
	e.off += len(b)
}

// PutU16At overwrites two bytes at a previously obtained Mark. Used to
// backfill the message count after the parts are encoded.
func (e *Encoder) PutU16At(mark int, v uint16) {
	if e.overflow || mark+2 > len(e.buf) {
		e.overflow = true
		return
	}
	binary.BigEndian.PutUint16(e.buf[mark:], v)
}

// Decoder reads big-endian values out of a buffer.
type Decoder struct {
	buf    []byte
	off    int
	failed bool
}

// NewDecoder returns a decoder reading from buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Error reports whether any read ran past the end of the buffer or Fail
// was called.
func (d *Decoder) Error() bool { return d.failed }

// Fail marks the decoder as errored. Used by callers that detect a
// semantically invalid value mid-decode.
func (d *Decoder) Fail() { d.failed = true }

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

func (d *Decoder) U8() uint8 {
	if d.failed || d.Remaining() < 1 {
		d.failed = true
		return 0
	}
	v := d.buf[d.off]
	d.off++
	return v
}

func (d *Decoder) U16() uint16 {
	if d.failed || d.Remaining() < 2 {
		d.failed = true
		return 0
	}
	v := binary.BigEndian.Uint16(d.buf[d.off:])
	d.off += 2
	return v
}

func (d *Decoder) U32() uint32 {
	if d.failed || d.Remaining() < 4 {
		d.failed = true
		return 0
	}
	v := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

// Bytes returns the next n bytes without copying. The slice aliases the
// decoder's buffer.
func (d *Decoder) Bytes(n int) []byte {
	if d.failed || d.Remaining() < n {
		d.failed = true
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

// AckSetSize is the wire footprint of an ack set.
const AckSetSize = 8

// PutAckSet encodes an ack set as high-water mark followed by window mask.
func PutAckSet(e *Encoder, a ackset.Set) {
	e.PutU32(a.High())
	e.PutU32(a.Mask())
}

// DecodeAckSet reads an ack set encoded by PutAckSet.
func DecodeAckSet(d *Decoder) ackset.Set {
	high := d.U32()
	mask := d.U32()
	return ackset.FromParts(high, mask)
}

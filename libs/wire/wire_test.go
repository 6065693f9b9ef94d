package wire

import (
	"bytes"
	"testing"

	"github.com/halfmoon-net/rondo/libs/ackset"
)

func TestEncoderOverflowIsSticky(t *testing.T) {
	e := NewEncoder(make([]byte, 5))
	e.PutU32(0xdeadbeef)
	if e.Error() {
		t.Fatal("4 bytes must fit in 5")
	}
	e.PutU16(1)
	if !e.Error() {
		t.Fatal("overflow not detected")
	}
	e.PutU8(1)
	if e.Written() != 4 {
		t.Fatalf("written = %v after overflow, want 4", e.Written())
	}
}

func TestDecoderUnderflowIsSticky(t *testing.T) {
	d := NewDecoder([]byte{1, 2, 3})
	d.U16()
	if d.Error() {
		t.Fatal("2 bytes must be readable")
	}
	d.U32()
	if !d.Error() {
		t.Fatal("underflow not detected")
	}
	if d.U8() != 0 {
		t.Fatal("reads after underflow must return zero")
	}
}

func TestPartRoundTrip(t *testing.T) {
	payload := []byte("fragment contents")
	buf := make([]byte, 100)
	e := NewEncoder(buf)
	PutPartHeader(e, MsgReliable, 42, 4000, 1000, uint16(len(payload)))
	e.PutBytes(payload)
	if e.Error() {
		t.Fatal("encode failed")
	}

	d := NewDecoder(buf[:e.Written()])
	p := DecodePart(d)
	if d.Error() {
		t.Fatal("decode failed")
	}
	if p.Type != MsgReliable || p.SequenceNumber != 42 ||
		p.OriginalSize != 4000 || p.ChunkStart != 1000 {
		t.Fatalf("header fields mangled: %+v", p)
	}
	if !bytes.Equal(p.Payload, payload) {
		t.Fatal("payload mangled")
	}
	if p.IsComplete() {
		t.Fatal("a mid-message chunk must not be complete")
	}
}

func TestPartComplete(t *testing.T) {
	buf := make([]byte, 64)
	e := NewEncoder(buf)
	PutPartHeader(e, MsgUnreliable, 7, 5, 0, 5)
	e.PutBytes([]byte("hello"))
	p := DecodePart(NewDecoder(buf[:e.Written()]))
	if !p.IsComplete() {
		t.Fatal("single-fragment message must be complete")
	}
}

func TestPartTruncated(t *testing.T) {
	buf := make([]byte, 64)
	e := NewEncoder(buf)
	PutPartHeader(e, MsgReliable, 1, 100, 0, 50)
	e.PutBytes(make([]byte, 50))
	// Drop the tail of the chunk.
	d := NewDecoder(buf[:e.Written()-10])
	DecodePart(d)
	if !d.Error() {
		t.Fatal("truncated part must fail the decoder")
	}
}

func TestPartChunkPastTotal(t *testing.T) {
	buf := make([]byte, 64)
	e := NewEncoder(buf)
	// chunk_start 8 + chunk_len 8 > orig_size 10
	PutPartHeader(e, MsgReliable, 1, 10, 8, 8)
	e.PutBytes(make([]byte, 8))
	d := NewDecoder(buf[:e.Written()])
	DecodePart(d)
	if !d.Error() {
		t.Fatal("chunk running past the declared size must fail the decoder")
	}
}

func TestAckSetRoundTrip(t *testing.T) {
	var a ackset.Set
	a.TryAdd(9)
	a.TryAdd(11)
	buf := make([]byte, AckSetSize)
	e := NewEncoder(buf)
	PutAckSet(e, a)
	if e.Error() || e.Written() != AckSetSize {
		t.Fatalf("ack set must encode to exactly %v bytes", AckSetSize)
	}
	b := DecodeAckSet(NewDecoder(buf))
	if !b.IsIn(9) || !b.IsIn(11) || b.IsIn(10) {
		t.Fatal("ack set mangled on the wire")
	}
}

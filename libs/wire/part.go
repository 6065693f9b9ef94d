package wire

// MsgType is the wire tag of a message part.
type MsgType uint8

const (
	MsgSync       MsgType = 0
	MsgKeepAlive  MsgType = 1
	MsgUnreliable MsgType = 2
	MsgReliable   MsgType = 3
	MsgClose      MsgType = 4
)

// PartHeaderSize is the fixed size of a part header:
// u8 type | u32 seq | u16 orig_size | u16 chunk_start | u16 chunk_len.
const PartHeaderSize = 11

// MaxMessageSize is the largest message payload the u16 orig_size field can
// describe.
const MaxMessageSize = 65535

// Part is one parsed wire fragment of a message.
type Part struct {
	Type           MsgType
	SequenceNumber uint32
	OriginalSize   uint16
	ChunkStart     uint16
	Payload        []byte
}

// IsComplete reports whether this single fragment carries the whole message.
func (p Part) IsComplete() bool {
	return p.ChunkStart == 0 && len(p.Payload) == int(p.OriginalSize)
}

// PutPartHeader encodes a part header. The chunk payload follows via
// PutBytes.
func PutPartHeader(e *Encoder, t MsgType, sn uint32, orig, start, chunkLen uint16) {
	e.PutU8(uint8(t))
	e.PutU32(sn)
	e.PutU16(orig)
	e.PutU16(start)
	e.PutU16(chunkLen)
}

// DecodePart reads one part. The payload aliases the decoder's buffer. A
// chunk that would run past the declared total size fails the decoder.
func DecodePart(d *Decoder) (p Part) {
	p.Type = MsgType(d.U8())
	p.SequenceNumber = d.U32()
	p.OriginalSize = d.U16()
	p.ChunkStart = d.U16()
	chunkLen := d.U16()
	p.Payload = d.Bytes(int(chunkLen))
	if int(p.ChunkStart)+int(chunkLen) > int(p.OriginalSize) {
		d.Fail()
	}
	return
}

package rdsock

import "github.com/halfmoon-net/rondo/libs/wire"

// outMessage is a message scheduled for transmission, together with its
// send-progress cursor. A reliable message cycles through the transmit queue
// until the peer acknowledges its sequence number; once bytesAlreadySent
// reaches the payload size the next encode wraps back to offset zero and the
// whole message goes out again.
type outMessage struct {
	resendUntilAcked bool
	typ              wire.MsgType
	sequenceNumber   uint32
	payload          []byte
	bytesAlreadySent int
}

func newOutMessage(resend bool, typ wire.MsgType, sn uint32, payload []byte) *outMessage {
	return &outMessage{
		resendUntilAcked: resend,
		typ:              typ,
		sequenceNumber:   sn,
		payload:          payload,
	}
}

// encodeHeaderAndPayload writes the part header and as many payload bytes
// from start as fit, returning the number of payload bytes written.
func (m *outMessage) encodeHeaderAndPayload(enc *wire.Encoder, start int) int {
	chunk := len(m.payload) - start
	if avail := enc.Remaining() - wire.PartHeaderSize; chunk > avail {
		chunk = avail
	}
	wire.PutPartHeader(enc, m.typ, m.sequenceNumber,
		uint16(len(m.payload)), uint16(start), uint16(chunk))
	enc.PutBytes(m.payload[start : start+chunk])
	return chunk
}

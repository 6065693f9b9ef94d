package rdsock

import (
	"log"
	"net"
	"time"

	pool "github.com/libp2p/go-buffer-pool"
	"github.com/pkg/errors"

	"github.com/halfmoon-net/rondo/libs/wire"
)

// startSending is the single entry point of the send scheduler, called on
// application sends, message receipt, keepalive expiry and pacing expiry.
// The sendState gate makes it idempotent: at most one datagram is in flight.
// Requires the lock; may release it briefly to run the flush callback.
func (s *Socket) startSending() {
	if s.st.closed {
		return
	}
	if s.remote == nil {
		return
	}
	if s.sendState != statePending {
		return
	}

	enc := wire.NewEncoder(s.st.txBuf)
	wire.PutAckSet(enc, s.received)
	count := s.encodePayload(enc)

	if count == 0 && !s.scheduledAckFlush {
		// Nothing to send and no acks owed: run the flush callback if one
		// is registered, then fall back to keepalives.
		if s.onFlush != nil {
			f := s.onFlush
			s.onFlush = nil
			s.mu.Unlock()
			f()
			s.mu.Lock()
			if s.st.closed {
				return
			}
		}
		s.keepaliveAlarm.Start(keepalivePeriod)
		return
	}

	s.scheduledAckFlush = false
	s.sendState = stateSending

	data := s.st.txBuf[:enc.Written()]
	st := s.st
	go func() {
		n, err := s.pc.WriteTo(data, s.remote)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.onSend(st, err, n)
	}()
}

// encodePayload walks one transmit-queue cycle, packing parts after a u16
// count placeholder which it backfills at the end.
func (s *Socket) encodePayload(enc *wire.Encoder) int {
	mark := enc.Mark()
	enc.PutU16(0)

	count := 0
	c := s.queue.cycle()
	for m := c.Current(); m != nil; m = c.Current() {
		if m.resendUntilAcked && s.peerAcked.IsIn(m.sequenceNumber) {
			c.Erase()
			continue
		}
		if !s.tryEncode(enc, m) {
			break
		}
		count++
		if m.bytesAlreadySent != len(m.payload) {
			// Datagram exhausted mid-message; the continuation goes out in
			// the next one.
			break
		}
		if !m.resendUntilAcked {
			c.Erase()
			continue
		}
		c.Advance()
	}

	enc.PutU16At(mark, uint16(count))
	return count
}

// tryEncode encodes m if the header plus at least one payload byte fit,
// leaving the encoder untouched otherwise.
func (s *Socket) tryEncode(enc *wire.Encoder, m *outMessage) bool {
	minimal := wire.PartHeaderSize
	if len(m.payload) > 0 {
		minimal++
	}
	if minimal > enc.Remaining() {
		return false
	}
	s.encode(enc, m)
	return true
}

func (s *Socket) encode(enc *wire.Encoder, m *outMessage) {
	if m.bytesAlreadySent == len(m.payload) {
		// Fully sent before: this is a retransmission, wrap to the start.
		m.bytesAlreadySent = 0
	}
	n := m.encodeHeaderAndPayload(enc, m.bytesAlreadySent)
	m.bytesAlreadySent += n
}

// onSend completes an asynchronous datagram send and arms the pacing timer.
func (s *Socket) onSend(st *socketState, err error, size int) {
	if st.closed {
		return
	}
	s.sendState = statePending
	if err != nil {
		if aborted(err) {
			return
		}
		s.handleError(errors.Wrap(err, "rondo: send"))
		return
	}
	s.sendState = stateWaiting
	s.pacing = time.AfterFunc(pacingDelay(s.remote, size), func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if st.closed {
			return
		}
		s.sendState = statePending
		s.startSending()
	})
}

// pacingDelay is 200µs per sent byte, zero on loopback where there is no
// link to protect.
func pacingDelay(remote net.Addr, size int) time.Duration {
	if ua, ok := remote.(*net.UDPAddr); ok && ua.IP.IsLoopback() {
		return 0
	}
	return pacingPerByte * time.Duration(size)
}

// packetWithOneMessage builds a standalone datagram holding only m, used for
// the SYN probe and the close message. The buffer comes from the pool; the
// caller returns it.
func (s *Socket) packetWithOneMessage(m *outMessage) []byte {
	buf := pool.Get(PacketSize)
	enc := wire.NewEncoder(buf)
	wire.PutAckSet(enc, s.received)
	enc.PutU16(1)
	if !s.tryEncode(enc, m) {
		panic("rdsock: a lone message must fit in one datagram")
	}
	return buf[:enc.Written()]
}

// syncSendCloseMessage fires a best-effort close datagram at the peer,
// synchronously, bypassing the scheduler.
func (s *Socket) syncSendCloseMessage() {
	m := newOutMessage(false, wire.MsgClose, 0, nil)
	data := s.packetWithOneMessage(m)
	if _, err := s.pc.WriteTo(data, s.remote); err != nil && doLogging {
		log.Println("rdsock: close message send failed:", err)
	}
	pool.Put(data[:PacketSize])
}

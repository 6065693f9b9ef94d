package rdsock

import (
	"log"
	"net"

	"github.com/halfmoon-net/rondo/libs/wire"
)

// startReceiving arms the inactivity alarm and starts the receive loop.
// Requires the lock.
func (s *Socket) startReceiving() {
	if s.st.closed {
		return
	}
	s.recvTimeoutAlarm.Start(s.RecvTimeoutDuration())
	go s.recvLoop(s.st)
}

func (s *Socket) recvLoop(st *socketState) {
	for {
		n, from, err := s.pc.ReadFrom(st.rxBuf)
		s.mu.Lock()
		if st.closed {
			s.mu.Unlock()
			return
		}
		s.recvTimeoutAlarm.Stop()
		if err != nil {
			if aborted(err) {
				s.mu.Unlock()
				return
			}
			r1 := s.onRecvUnreliable
			r2 := s.onRecvReliable
			s.onRecvUnreliable = nil
			s.onRecvReliable = nil
			s.mu.Unlock()
			if r1 != nil {
				r1(err, nil)
			}
			if r2 != nil {
				r2(err, nil)
			}
			return
		}
		cont := s.handleDatagram(st, from, st.rxBuf[:n])
		if !cont {
			s.mu.Unlock()
			return
		}
		s.recvTimeoutAlarm.Start(s.RecvTimeoutDuration())
		s.mu.Unlock()
	}
}

// handleDatagram decodes one datagram and dispatches its parts. It returns
// whether the receive loop should keep going.
func (s *Socket) handleDatagram(st *socketState, from net.Addr, data []byte) bool {
	// Ignore packets from unknown sources.
	if s.remote != nil && from.String() != s.remote.String() {
		return true
	}

	dec := wire.NewDecoder(data)
	acks := wire.DecodeAckSet(dec)
	if dec.Error() {
		s.handleError(ErrParse)
		return false
	}
	// Total replacement: an older datagram may reduce our information.
	s.peerAcked = acks

	count := dec.U16()
	if dec.Error() {
		s.handleError(ErrParse)
		return false
	}
	for i := 0; i < int(count); i++ {
		part := wire.DecodePart(dec)
		if dec.Error() {
			s.handleError(ErrParse)
			return false
		}
		s.handleMessage(st, part)
		if st.closed {
			return false
		}
	}

	// Piggyback acks (and anything else now queued) on the way out.
	s.startSending()
	return !st.closed
}

func (s *Socket) handleMessage(st *socketState, part wire.Part) {
	switch part.Type {
	case wire.MsgSync:
		s.handleSyncMessage(part)
	case wire.MsgKeepAlive:
	case wire.MsgUnreliable:
		s.handleUnreliableMessage(st, part)
	case wire.MsgReliable:
		s.handleReliableMessage(st, part)
	case wire.MsgClose:
		s.handleCloseMessage()
	default:
		s.handleError(ErrParse)
	}
}

// handleSyncMessage establishes the peer's sequence-number baseline on the
// first SYN; later SYNs only re-schedule an ack flush.
func (s *Socket) handleSyncMessage(part wire.Part) {
	s.scheduledAckFlush = true
	if s.sync == nil {
		s.received.TryAdd(part.SequenceNumber)
		s.sync = &peerSync{
			lastReliableSN:   part.SequenceNumber,
			lastUnreliableSN: part.SequenceNumber,
		}
	}
}

func (s *Socket) handleCloseMessage() {
	s.closeLocked(false)
	s.handleError(ErrConnectionReset)
}

// handleUnreliableMessage implements the single-slot reassembly policy: a
// newer in-progress message evicts an older one, fragments of an older one
// are discarded, fragments of the current one merge.
func (s *Socket) handleUnreliableMessage(st *socketState, part wire.Part) {
	if s.onRecvUnreliable == nil {
		return
	}
	if s.sync == nil {
		return
	}
	if part.SequenceNumber <= s.sync.lastUnreliableSN {
		return
	}

	if part.IsComplete() {
		if !s.deliverUnreliable(st, part.Payload) {
			return
		}
		s.sync.lastUnreliableSN = part.SequenceNumber
		s.pendingUnreliable = nil
		return
	}

	pm := s.pendingUnreliable
	if pm == nil || pm.sequenceNumber < part.SequenceNumber {
		s.pendingUnreliable = newPendingMessage(part)
		return
	}
	if pm.sequenceNumber > part.SequenceNumber {
		return
	}

	pm.updatePayload(part.ChunkStart, part.Payload)
	if pm.isComplete() {
		if !s.deliverUnreliable(st, pm.payload) {
			return
		}
		s.sync.lastUnreliableSN = part.SequenceNumber
		s.pendingUnreliable = nil
	}
}

// deliverUnreliable moves the unreliable receiver out of its slot and runs
// it. It reports whether the session survived the callback.
func (s *Socket) deliverUnreliable(st *socketState, payload []byte) bool {
	r := s.onRecvUnreliable
	s.onRecvUnreliable = nil
	s.mu.Unlock()
	r(nil, payload)
	s.mu.Lock()
	return !st.closed
}

func (s *Socket) handleReliableMessage(st *socketState, part wire.Part) {
	s.scheduledAckFlush = true
	if s.sync == nil {
		return
	}
	if !s.received.CanAdd(part.SequenceNumber) {
		// Duplicate of something already delivered.
		return
	}

	if part.SequenceNumber == s.sync.lastReliableSN+1 && part.IsComplete() {
		if !s.userHandleReliableMsg(st, part.SequenceNumber, part.Payload) {
			return
		}
		s.replayPendingMessages(st)
		return
	}

	pm, ok := s.pendingReliable[part.SequenceNumber]
	if !ok {
		if len(s.pendingReliable) >= maxPendingReliable {
			if doLogging {
				log.Println("rdsock: reassembly table full, dropping sn", part.SequenceNumber)
			}
			return
		}
		s.pendingReliable[part.SequenceNumber] = newPendingMessage(part)
		return
	}
	pm.updatePayload(part.ChunkStart, part.Payload)
	s.replayPendingMessages(st)
}

// replayPendingMessages delivers queued reliable messages while the next one
// in sequence is complete. Strict ordering: the first gap stops the replay.
func (s *Socket) replayPendingMessages(st *socketState) {
	for {
		sn := s.sync.lastReliableSN + 1
		pm, ok := s.pendingReliable[sn]
		if !ok {
			return
		}
		if !pm.isComplete() {
			return
		}
		if !s.userHandleReliableMsg(st, sn, pm.payload) {
			return
		}
		delete(s.pendingReliable, sn)
	}
}

// userHandleReliableMsg hands a complete reliable message to the user. The
// callback is moved out of its slot first, so a delivery can never re-enter
// it; the user re-registers to keep receiving. Only when the session
// survives the callback does the message count as received: the sequence
// cursor advances and the ack is recorded.
func (s *Socket) userHandleReliableMsg(st *socketState, sn uint32, payload []byte) bool {
	if s.onRecvReliable == nil {
		return false
	}
	f := s.onRecvReliable
	s.onRecvReliable = nil
	s.mu.Unlock()
	f(nil, payload)
	s.mu.Lock()
	if st.closed {
		return false
	}
	s.received.TryAdd(sn)
	s.sync.lastReliableSN = sn
	return true
}

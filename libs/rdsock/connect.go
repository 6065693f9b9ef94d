package rdsock

import (
	"net"

	pool "github.com/libp2p/go-buffer-pool"
	"github.com/pkg/errors"

	"github.com/halfmoon-net/rondo/libs/punch"
	"github.com/halfmoon-net/rondo/libs/wire"
)

// OnConnect reports the outcome of connection establishment.
type OnConnect func(err error)

// RendezvousConnect hole-punches toward remote, with the session's SYN
// riding on the probe datagram, then starts the send and receive machinery.
// onConnect runs exactly once, with nil on success. An unspecified remote
// address is taken to mean the loopback of its family.
func (s *Socket) RendezvousConnect(remote net.Addr, onConnect OnConnect) {
	remote = sanitizeAddr(remote)

	s.mu.Lock()
	syn := newOutMessage(true, wire.MsgSync, s.nextReliableSN, nil)
	s.nextReliableSN++
	probe := s.packetWithOneMessage(syn)
	st := s.st
	s.mu.Unlock()

	go func() {
		from, err := punch.Punch(s.pc, remote, probe, punch.Config{})
		pool.Put(probe[:PacketSize])
		if err != nil {
			onConnect(errors.Wrap(err, "rondo: hole punch"))
			return
		}
		s.mu.Lock()
		if st.closed {
			s.mu.Unlock()
			onConnect(ErrClosed)
			return
		}
		s.remote = from
		// The SYN keeps retransmitting until the peer acks it.
		s.queue.insert(syn)
		s.startSending()
		s.startReceiving()
		s.mu.Unlock()
		onConnect(nil)
	}()
}

// Connect starts the handshake on a socket constructed with a known remote
// endpoint, skipping hole punching.
func (s *Socket) Connect(onConnect OnConnect) {
	s.mu.Lock()
	if s.st.closed {
		s.mu.Unlock()
		onConnect(ErrClosed)
		return
	}
	if s.remote == nil {
		s.mu.Unlock()
		onConnect(errors.New("rondo: no remote endpoint bound"))
		return
	}
	s.queue.emplace(true, wire.MsgSync, s.nextReliableSN, nil)
	s.nextReliableSN++
	s.startSending()
	s.startReceiving()
	s.mu.Unlock()
	onConnect(nil)
}

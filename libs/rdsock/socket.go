// Package rdsock implements a connection-oriented datagram transport for a
// single endpoint pair over UDP (or any net.PacketConn). A session carries
// two logical streams: a reliable one, delivered in order with
// fragmentation, acknowledgement and retransmission, and an unreliable
// best-effort one. Sessions are established by simultaneous hole punching
// (see libs/punch), with the SYN message riding on the punch probe.
//
// Every outbound datagram is MTU-bounded and carries the current ack set
// followed by a batch of message parts. Sends are paced by a timer
// proportional to the last datagram's size, keepalives flow when the session
// is idle, and a receive-inactivity timeout tears the session down.
package rdsock

import (
	"net"
	"sync"
	"time"

	pool "github.com/libp2p/go-buffer-pool"

	"github.com/halfmoon-net/rondo/libs/ackset"
	"github.com/halfmoon-net/rondo/libs/wire"
)

// PacketSize is the fixed datagram budget.
const PacketSize = 1452

// MaxMessageSize is the largest payload SendReliable and SendUnreliable
// accept.
const MaxMessageSize = wire.MaxMessageSize

const keepalivePeriod = 200 * time.Millisecond

// pacingPerByte stands in for congestion control: the delay between
// datagrams grows with the size of the last one, modelling a ~40kbit/s
// worst-case link.
const pacingPerByte = 200 * time.Microsecond

// maxPendingReliable bounds the reassembly table. Parts for new sequence
// numbers beyond the bound are dropped; the peer retransmits them once the
// table drains.
const maxPendingReliable = 1024

// OnReceive is a receive callback. err is nil on delivery; on a session
// error it is one of the Err* sentinels, or the error of a failed socket
// read or send, and payload is empty. The payload is only valid until the
// callback returns.
type OnReceive func(err error, payload []byte)

// OnFlush is invoked when the send scheduler finds nothing left to send.
type OnFlush func()

type sendState int

const (
	stateSending sendState = iota
	stateWaiting
	statePending
)

// socketState is shared with every in-flight I/O goroutine, timer and
// callback. closed doubles as the liveness flag: once set, any completion
// still in flight becomes a no-op.
type socketState struct {
	closed bool
	rxBuf  []byte
	txBuf  []byte
}

// peerSync is the peer's sequence-number baseline, learned from its SYN.
// While it is nil the session has never seen the peer's SYN and discards
// reliable and unreliable parts (a reliable part still schedules an ack).
type peerSync struct {
	lastReliableSN   uint32
	lastUnreliableSN uint32
}

// Socket is one endpoint of a session. It owns its packet connection
// exclusively. All callbacks are invoked without internal locks held, so
// they may call back into the socket, including Close.
type Socket struct {
	mu sync.Mutex

	pc     net.PacketConn
	remote net.Addr
	st     *socketState

	sendState sendState
	queue     transmitQueue
	pacing    *time.Timer

	sync              *peerSync
	pendingReliable   map[uint32]*pendingMessage
	pendingUnreliable *pendingMessage
	scheduledAckFlush bool

	// received goes out in every datagram header; peerAcked is replaced
	// wholesale by every datagram that comes in.
	received  ackset.Set
	peerAcked ackset.Set

	nextReliableSN   uint32
	nextUnreliableSN uint32

	onRecvReliable   OnReceive
	onRecvUnreliable OnReceive
	onFlush          OnFlush

	keepaliveAlarm   *alarm
	recvTimeoutAlarm *alarm
}

// NewSocket creates a session over pc with no remote endpoint yet; use
// RendezvousConnect to bind one.
func NewSocket(pc net.PacketConn) *Socket {
	return NewSocketWithRemote(pc, nil)
}

// NewSocketWithRemote creates a session whose remote endpoint is already
// known, skipping hole punching. The caller drives the handshake with
// Connect.
func NewSocketWithRemote(pc net.PacketConn, remote net.Addr) *Socket {
	s := &Socket{
		pc:     pc,
		remote: remote,
		st: &socketState{
			rxBuf: pool.Get(PacketSize),
			txBuf: pool.Get(PacketSize),
		},
		sendState:        statePending,
		pendingReliable:  make(map[uint32]*pendingMessage),
		nextReliableSN:   0,
		nextUnreliableSN: 1,
	}
	s.keepaliveAlarm = newAlarm(s.onKeepaliveAlarm)
	s.recvTimeoutAlarm = newAlarm(s.onRecvTimeoutAlarm)
	return s
}

// LocalEndpoint returns the local address of the underlying connection.
func (s *Socket) LocalEndpoint() net.Addr {
	return s.pc.LocalAddr()
}

// RemoteEndpoint returns the bound remote address, or nil before the
// session is connected.
func (s *Socket) RemoteEndpoint() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// RecvTimeoutDuration is the receive-inactivity window after which the
// session dies with ErrTimedOut.
func (s *Socket) RecvTimeoutDuration() time.Duration {
	return keepalivePeriod * 5
}

// ReceiveReliable registers a single-shot receiver for the reliable stream.
// The callback is consumed by the delivery; register again from inside it to
// keep receiving.
func (s *Socket) ReceiveReliable(cb OnReceive) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRecvReliable = cb
}

// ReceiveUnreliable registers a single-shot receiver for the unreliable
// stream.
func (s *Socket) ReceiveUnreliable(cb OnReceive) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRecvUnreliable = cb
}

// SendReliable queues payload on the reliable stream. The socket takes
// ownership of the slice; it is retransmitted until the peer acknowledges
// it.
func (s *Socket) SendReliable(payload []byte) error {
	if len(payload) > MaxMessageSize {
		return ErrMessageTooBig
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.closed {
		return ErrClosed
	}
	s.queue.emplace(true, wire.MsgReliable, s.nextReliableSN, payload)
	s.nextReliableSN++
	s.startSending()
	return nil
}

// SendUnreliable queues payload on the best-effort stream. It goes out
// exactly once, fragmented across consecutive datagrams if needed, and is
// never retransmitted; the receiver abandons it if a newer unreliable
// message overtakes it.
func (s *Socket) SendUnreliable(payload []byte) error {
	if len(payload) > MaxMessageSize {
		return ErrMessageTooBig
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.closed {
		return ErrClosed
	}
	s.queue.emplace(false, wire.MsgUnreliable, s.nextUnreliableSN, payload)
	s.nextUnreliableSN++
	s.startSending()
	return nil
}

// Flush registers cb to run the next time the send scheduler finds nothing
// to send. With nothing outstanding it fires immediately.
func (s *Socket) Flush(cb OnFlush) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFlush = cb
	s.startSending()
}

// Close sends a best-effort close message to the peer, closes the
// connection and stops all timers. After Close no receive or flush callback
// fires; the onConnect of a RendezvousConnect still in progress is called
// with an error.
func (s *Socket) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(true)
}

func (s *Socket) closeLocked(sendClose bool) {
	if s.st.closed {
		return
	}
	if s.pacing != nil {
		s.pacing.Stop()
	}
	if sendClose && s.remote != nil {
		s.syncSendCloseMessage()
	}
	s.st.closed = true
	s.pc.Close()
	s.recvTimeoutAlarm.Stop()
	s.keepaliveAlarm.Stop()
}

// handleError closes the session and delivers err once to whichever receive
// callbacks are registered. Requires the lock; releases it around the
// callbacks. Callers must return promptly afterwards.
func (s *Socket) handleError(err error) {
	s.closeLocked(true)
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
	s.mu.Lock()
}

func (s *Socket) onRecvTimeoutAlarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.closed {
		return
	}
	s.handleError(ErrTimedOut)
}

func (s *Socket) onKeepaliveAlarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.closed {
		return
	}
	s.queue.emplace(false, wire.MsgKeepAlive, 0, nil)
	s.startSending()
}

// sanitizeAddr maps an unspecified UDP address to the loopback of its
// family.
func sanitizeAddr(addr net.Addr) net.Addr {
	ua, ok := addr.(*net.UDPAddr)
	if !ok {
		return addr
	}
	if ua.IP != nil && !ua.IP.IsUnspecified() {
		return addr
	}
	clone := *ua
	if ua.IP == nil || ua.IP.To4() != nil {
		clone.IP = net.IPv4(127, 0, 0, 1)
	} else {
		clone.IP = net.IPv6loopback
	}
	return &clone
}

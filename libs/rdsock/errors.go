package rdsock

import (
	"errors"
	"net"
)

var (
	// ErrParse means a datagram could not be decoded. Fatal; the session is
	// closed before the error reaches the receive callbacks.
	ErrParse = errors.New("rondo: malformed datagram")

	// ErrTimedOut means nothing arrived within the receive-inactivity
	// window. Fatal.
	ErrTimedOut = errors.New("rondo: receive inactivity timeout")

	// ErrConnectionReset means the peer sent a close message. Fatal.
	ErrConnectionReset = errors.New("rondo: connection reset by peer")

	// ErrClosed is returned by operations on a closed socket.
	ErrClosed = errors.New("rondo: socket closed")

	// ErrMessageTooBig is returned for payloads the wire format cannot
	// describe.
	ErrMessageTooBig = errors.New("rondo: message exceeds 65535 bytes")
)

// aborted reports whether an I/O error is the echo of our own Close rather
// than a real failure.
func aborted(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

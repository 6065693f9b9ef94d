package rdsock

import "github.com/halfmoon-net/rondo/libs/wire"

// transmitQueue holds the messages scheduled for transmission. Iteration
// goes through a cycle cursor: each cycle visits every message that was
// queued when the cycle started, exactly once, resuming where the previous
// cycle left off so reliable retransmissions and fresh messages share the
// datagram budget fairly. Erasure punches a hole in the backing slice; holes
// are compacted at the start of the next cycle. Messages inserted while a
// cycle is running wait for the next one.
type transmitQueue struct {
	msgs []*outMessage
	pos  int
}

func (q *transmitQueue) insert(m *outMessage) {
	q.msgs = append(q.msgs, m)
}

func (q *transmitQueue) emplace(resend bool, typ wire.MsgType, sn uint32, payload []byte) {
	q.insert(newOutMessage(resend, typ, sn, payload))
}

func (q *transmitQueue) size() int {
	n := 0
	for _, m := range q.msgs {
		if m != nil {
			n++
		}
	}
	return n
}

// compact removes holes, keeping pos on the element it pointed at (or the
// next live one, wrapping).
func (q *transmitQueue) compact() {
	live := 0
	newPos := -1
	for i, m := range q.msgs {
		if m == nil {
			continue
		}
		if i >= q.pos && newPos == -1 {
			newPos = live
		}
		q.msgs[live] = m
		live++
	}
	for i := live; i < len(q.msgs); i++ {
		q.msgs[i] = nil
	}
	q.msgs = q.msgs[:live]
	if newPos == -1 {
		newPos = 0
	}
	q.pos = newPos
}

// cycle starts a new round-robin pass over the currently queued messages.
type cycle struct {
	q         *transmitQueue
	end       int
	remaining int
}

func (q *transmitQueue) cycle() *cycle {
	q.compact()
	return &cycle{q: q, end: len(q.msgs), remaining: len(q.msgs)}
}

// Current returns the message under the cursor, or nil once the cycle has
// visited everything.
func (c *cycle) Current() *outMessage {
	if c.remaining == 0 {
		return nil
	}
	return c.q.msgs[c.q.pos]
}

// Advance moves to the next message, keeping the current one queued.
func (c *cycle) Advance() {
	c.remaining--
	c.next()
}

// Erase removes the message under the cursor and advances.
func (c *cycle) Erase() {
	c.q.msgs[c.q.pos] = nil
	c.remaining--
	c.next()
}

// next steps the cursor to the following live entry, wrapping within the
// cycle's snapshot. It also runs on the final Advance/Erase so the queue's
// resume position moves past the last visited message.
func (c *cycle) next() {
	for i := 0; i < c.end; i++ {
		c.q.pos++
		if c.q.pos >= c.end {
			c.q.pos = 0
		}
		if c.q.msgs[c.q.pos] != nil {
			return
		}
	}
}

package rdsock

import (
	"sort"

	"github.com/halfmoon-net/rondo/libs/wire"
)

type span struct {
	start, end int
}

// pendingMessage is the reassembly buffer for one inbound message. Chunks
// land at their offset in a preallocated payload; filled tracks which byte
// ranges have arrived, merged and sorted.
type pendingMessage struct {
	sequenceNumber uint32
	typ            wire.MsgType
	payload        []byte
	filled         []span
}

func newPendingMessage(part wire.Part) *pendingMessage {
	pm := &pendingMessage{
		sequenceNumber: part.SequenceNumber,
		typ:            part.Type,
		payload:        make([]byte, part.OriginalSize),
	}
	pm.updatePayload(part.ChunkStart, part.Payload)
	return pm
}

// updatePayload copies a chunk into place and widens the filled ranges.
// Chunks inconsistent with the original total size are dropped.
func (pm *pendingMessage) updatePayload(chunkStart uint16, b []byte) {
	start := int(chunkStart)
	if start+len(b) > len(pm.payload) {
		return
	}
	copy(pm.payload[start:], b)
	pm.addSpan(start, start+len(b))
}

func (pm *pendingMessage) addSpan(start, end int) {
	if start == end {
		return
	}
	spans := append(pm.filled, span{start, end})
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
		} else {
			merged = append(merged, s)
		}
	}
	pm.filled = merged
}

// isComplete reports whether the filled ranges cover the whole payload.
func (pm *pendingMessage) isComplete() bool {
	if len(pm.payload) == 0 {
		return true
	}
	return len(pm.filled) == 1 && pm.filled[0].start == 0 && pm.filled[0].end == len(pm.payload)
}

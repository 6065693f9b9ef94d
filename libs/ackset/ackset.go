// Package ackset implements a compact set of recently received sequence
// numbers. The set is a 32-bit bitfield anchored at a high-water mark, so it
// always fits in 8 bytes on the wire regardless of how many numbers it has
// absorbed. The acknowledgement it expresses is cumulative: reliable
// messages are delivered strictly in order, so a number that has fallen
// below the window floor was necessarily received and IsIn reports it as
// present. Insertion below the floor is refused, which is how duplicate
// detection rejects stale retransmissions.
package ackset

// windowSize is the number of sequence numbers the bitfield can cover,
// counting down from the high-water mark.
const windowSize = 32

// Set is a windowed set of sequence numbers. The zero value is empty and
// ready for use. Sets are small value types; replace one wholesale by
// assignment.
type Set struct {
	high uint32
	mask uint32
}

// FromParts reconstructs a Set from its wire representation. A zero mask
// means the empty set.
func FromParts(high, mask uint32) Set {
	return Set{high: high, mask: mask}
}

// High returns the high-water mark. Meaningless when the set is empty.
func (s Set) High() uint32 { return s.high }

// Mask returns the window bitfield. Bit i corresponds to High()-i.
func (s Set) Mask() uint32 { return s.mask }

// Empty reports whether the set contains no sequence numbers.
func (s Set) Empty() bool { return s.mask == 0 }

// IsIn reports whether sn is in the set. Numbers below the window floor
// count as present (cumulative acknowledgement).
func (s Set) IsIn(sn uint32) bool {
	if s.mask == 0 || sn > s.high {
		return false
	}
	d := s.high - sn
	if d >= windowSize {
		return true
	}
	return s.mask&(1<<d) != 0
}

// CanAdd reports whether TryAdd(sn) would succeed: sn must be representable
// within the window and not already present.
func (s Set) CanAdd(sn uint32) bool {
	if s.mask == 0 || sn > s.high {
		return true
	}
	d := s.high - sn
	if d >= windowSize {
		return false
	}
	return s.mask&(1<<d) == 0
}

// TryAdd inserts sn, advancing the high-water mark if needed. Numbers more
// than windowSize-1 below the mark, or already present, are rejected.
func (s *Set) TryAdd(sn uint32) bool {
	if s.mask == 0 {
		s.high = sn
		s.mask = 1
		return true
	}
	if sn > s.high {
		shift := sn - s.high
		if shift >= windowSize {
			s.mask = 1
		} else {
			s.mask = s.mask<<shift | 1
		}
		s.high = sn
		return true
	}
	d := s.high - sn
	if d >= windowSize {
		return false
	}
	if s.mask&(1<<d) != 0 {
		return false
	}
	s.mask |= 1 << d
	return true
}

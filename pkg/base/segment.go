package base

import "math/bits"

// Addr is satisfied by any address-like type backed by a machine word:
// PAddr, VAddr, or a bare uintptr used by the buddy indices over integer
// ranges. Segment[T] is generic over it so the same range bookkeeping code
// serves physical addresses, virtual addresses and raw page indices.
type Addr interface {
	~uintptr
}

// Segment is a half-open range [start, end) of address-like values, where
// a missing end means "to the top of the address space" (end wraps to
// zero). This mirrors the original's Segment<P>, which represents the
// top-of-space sentinel the same way rather than using a separate bool.
type Segment[T Addr] struct {
	start T
	end   T
	open  bool // true iff there is no explicit end (end reads as wrap-to-zero)
}

// NewSegment builds a segment from a start and an optional end. A nil end
// means "extends to the top of the address space". It returns false if
// end is non-nil and not strictly greater than start.
func NewSegment[T Addr](start T, end *T) (Segment[T], bool) {
	if end == nil {
		return Segment[T]{start: start, open: true}, true
	}
	if *end <= start {
		return Segment[T]{}, false
	}
	return Segment[T]{start: start, end: *end}, true
}

// ByPoints builds the half-open segment [start, end). It returns false if
// end <= start.
func ByPoints[T Addr](start, end T) (Segment[T], bool) {
	if end <= start {
		return Segment[T]{}, false
	}
	return Segment[T]{start: start, end: end}, true
}

// BySize builds the segment [start, start+size). It returns false on
// overflow or a zero size.
func BySize[T Addr](start T, size uintptr) (Segment[T], bool) {
	if size == 0 {
		return Segment[T]{}, false
	}
	end := start + T(size)
	if end != 0 && uintptr(end) <= uintptr(start) {
		return Segment[T]{}, false
	}
	if end == 0 {
		return Segment[T]{start: start, open: true}, true
	}
	return Segment[T]{start: start, end: end}, true
}

// Start returns the segment's lower bound.
func (s Segment[T]) Start() T { return s.start }

// End returns the segment's exclusive upper bound and whether it is
// explicit (false means the segment runs to the top of the address
// space).
func (s Segment[T]) End() (T, bool) {
	if s.open {
		return 0, false
	}
	return s.end, true
}

// WrappingEnd returns the exclusive upper bound, treating "open" as 0
// (wrapped around the top of the address space) the way the original's
// wrapping_end does arithmetic uniformly.
func (s Segment[T]) WrappingEnd() T {
	if s.open {
		return 0
	}
	return s.end
}

// IsEmpty reports whether the segment covers zero addresses. Only the
// zero-value Segment (never produced by the constructors above) is empty;
// it exists so call sites that build a Segment incrementally can test it.
func (s Segment[T]) IsEmpty() bool {
	return !s.open && s.end == s.start
}

// Contains reports whether other is fully covered by s.
func (s Segment[T]) Contains(other Segment[T]) bool {
	if other.start < s.start {
		return false
	}
	if s.open {
		return true
	}
	if other.open {
		return false
	}
	return other.end <= s.end
}

// ContainsAddr reports whether addr lies within the segment.
func (s Segment[T]) ContainsAddr(addr T) bool {
	if addr < s.start {
		return false
	}
	return s.open || addr < s.end
}

// Len returns the number of addresses in a bounded segment. Callers must
// not call it on an open segment.
func (s Segment[T]) Len() uintptr {
	if s.open {
		panic("base: Len of an open-ended segment")
	}
	return uintptr(s.end) - uintptr(s.start)
}

// lowbit returns the lowest set bit of x, or 0 if x == 0.
func lowbit(x uintptr) uintptr { return x & (-x) }

// IntegerPartition splits a Segment[uintptr] into a sequence of
// power-of-two aligned blocks (addr, height) with block size 1<<height
// that exactly covers it with no gaps or overlaps. The sequence is not
// always the shortest possible: a segment starting at 0 opens with a
// block sized by the lowest set bit of its end, so [0, 6) yields three
// blocks of 2. Grounded on kernel/src/mem/utils.rs's integer_partition
// in original_source: the buddy index uses this to lay out its
// per-block trees.
func IntegerPartition(r Segment[uintptr]) [][2]uintptr {
	var out [][2]uintptr
	if r.IsEmpty() {
		return out
	}
	fullOpen, _ := NewSegment[uintptr](0, nil)
	if r == fullOpen {
		h := uintptr(bits.UintSize - 1)
		out = append(out, [2]uintptr{0, h})
		out = append(out, [2]uintptr{uintptr(1) << h, h})
		return out
	}
	end := r.WrappingEnd()
	start := r.Start()
	if start == 0 {
		h := uintptr(bits.TrailingZeros(uint(end)))
		out = append(out, [2]uintptr{start, h})
		start += uintptr(1) << h
	}
	for start != end {
		guess := start + lowbit(start)
		if end != 0 && (guess == 0 || guess > end) {
			break
		}
		out = append(out, [2]uintptr{start, uintptr(bits.TrailingZeros(uint(lowbit(start))))})
		start += lowbit(start)
	}
	pow := lowbit(start) >> 1
	for pow != 0 {
		if end&pow != 0 {
			out = append(out, [2]uintptr{start, uintptr(bits.TrailingZeros(uint(pow)))})
			start += pow
		}
		pow >>= 1
	}
	return out
}

package base

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
)

// TestIntegerPartitionCovers is the "Integer partition covers" testable
// property: concatenating by_size(addr, 2^h) over the partition exactly
// reproduces the segment, with no gaps or overlaps.
func TestIntegerPartitionCovers(t *testing.T) {
	f := func(startSmall uint32, lenSmall uint32) bool {
		start := uintptr(startSmall)
		length := uintptr(lenSmall%(1<<20)) + 1
		end := start + length
		if end <= start {
			return true // overflowed past the top of the address space, skip
		}
		seg, ok := ByPoints(start, end)
		if !ok {
			return false
		}
		parts := IntegerPartition(seg)
		if len(parts) == 0 {
			return false
		}
		cursor := start
		for _, hp := range parts {
			addr, height := hp[0], hp[1]
			if addr != cursor {
				return false
			}
			size := uintptr(1) << height
			if addr&(size-1) != 0 {
				return false // not aligned to its own block size
			}
			cursor = addr + size
		}
		return cursor == end
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 2000}))
}

func TestSegmentContainsAndLen(t *testing.T) {
	s, ok := ByPoints[uintptr](10, 20)
	require.True(t, ok)
	require.Equal(t, uintptr(10), s.Len())
	require.True(t, s.ContainsAddr(10))
	require.False(t, s.ContainsAddr(20))

	inner, ok := ByPoints[uintptr](12, 18)
	require.True(t, ok)
	require.True(t, s.Contains(inner))

	outer, ok := ByPoints[uintptr](5, 25)
	require.True(t, ok)
	require.False(t, s.Contains(outer))
}

func TestSegmentOpenEnded(t *testing.T) {
	s, ok := NewSegment[uintptr](100, nil)
	require.True(t, ok)
	_, hasEnd := s.End()
	require.False(t, hasEnd)
	require.True(t, s.ContainsAddr(^uintptr(0)))
	require.False(t, s.ContainsAddr(50))
}

func TestBySizeRejectsZero(t *testing.T) {
	_, ok := BySize[uintptr](0, 0)
	require.False(t, ok)
}

// Package buddy implements a range allocator over [start,end) of a fixed
// granularity: set/get/find over a non-empty Segment[uintptr], internally
// partitioned into power-of-two aligned blocks each holding a small
// binary tree whose leaves collapse to an "all-free" or "all-taken"
// sentinel and whose interior nodes cache the height of their tallest
// free subtree. Two storage flavors are provided: ArrayBuddy (a flat
// []int8 per block, used by the physical frame allocator where the tree
// shape is fixed at boot) and TreeBuddy (a pointer tree per block, used
// by the user-space page allocator where nodes churn as areas come and
// go). Grounded on original_source's kernel/src/mem/frames/buddy.rs and
// kernel/src/mem/pages/buddy.rs.
package buddy

import "errors"

// ErrZeroSize is returned when an operation is given an empty segment or
// a zero allocation size.
var ErrZeroSize = errors.New("buddy: zero size")

// ErrOutOfBounds is returned when a segment falls outside the buddy's
// covered range, or no free block of the requested size exists.
var ErrOutOfBounds = errors.New("buddy: out of bounds")

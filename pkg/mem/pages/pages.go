// Package pages bookkeeps named sub-regions of a single virtual
// Segment[VAddr]: an ordered map from the region's start address to its
// (segment, value) pair, plus a buddy index over the same range so
// "find a free region of this layout" doesn't need to scan the map.
// Grounded on original_source's kernel/src/mem/pages/mod.rs; the ordered
// map is backed by github.com/google/btree instead of a hand-rolled
// balanced tree, since that is exactly the role Rust's alloc::BTreeMap
// plays there and the corpus (this repo's own domain-stack choice)
// reaches for a real ordered-map library rather than the stdlib's
// unordered map.
package pages

import (
	"sync"

	"github.com/google/btree"

	"github.com/nekos-kernel/nekos/pkg/base"
	"github.com/nekos-kernel/nekos/pkg/mem/buddy"
)

type entry[T any] struct {
	start   base.VAddr
	segment base.Segment[base.VAddr]
	value   T
}

func lessEntry[T any](a, b entry[T]) bool { return a.start < b.start }

// Pages is the per-segment virtual-range bookkeeper. T is the payload
// attached to each reservation — in the Area tree, either a nested
// sub-area or a (Map, Permission) leaf.
type Pages[T any] struct {
	segment base.Segment[base.VAddr]
	mu      sync.Mutex
	tree    *btree.BTreeG[entry[T]]
	buddy   *buddy.TreeBuddy
}

// New builds a Pages bookkeeper over segment, initially empty.
func New[T any](segment base.Segment[base.VAddr]) (*Pages[T], error) {
	if segment.IsEmpty() {
		return nil, ErrZeroSize
	}
	bd, err := buddy.NewTreeBuddy(toRawSegment(segment))
	if err != nil {
		return nil, err
	}
	return &Pages[T]{
		segment: segment,
		tree:    btree.NewG(32, lessEntry[T]),
		buddy:   bd,
	}, nil
}

func toRawSegment(seg base.Segment[base.VAddr]) base.Segment[uintptr] {
	if end, ok := seg.End(); ok {
		s, _ := base.ByPoints(uintptr(seg.Start()), uintptr(end))
		return s
	}
	s, _ := base.NewSegment[uintptr](uintptr(seg.Start()), nil)
	return s
}

// Acquire atomically checks that segment overlaps no existing
// reservation and no other consumer of the same byte range, then
// records it with value t. The overlap check inspects the reservation
// starting at or before segment's start (does it cover that start?) and
// the next one after it (does segment reach it?); since reservations
// never overlap each other, those two are the only candidates. The
// buddy Set call underneath stays as a backstop and panics (a fatal
// data-structure violation, not a recoverable error) on any overlap
// that reaches it.
func (p *Pages[T]) Acquire(segment base.Segment[base.VAddr], t T) error {
	if segment.IsEmpty() {
		return ErrZeroSize
	}
	if !p.segment.Contains(segment) {
		return ErrOutOfRange
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var overlap bool
	p.tree.DescendLessOrEqual(entry[T]{start: segment.Start()}, func(x entry[T]) bool {
		overlap = x.segment.ContainsAddr(segment.Start())
		return false
	})
	p.tree.AscendGreaterOrEqual(entry[T]{start: segment.Start()}, func(x entry[T]) bool {
		end, ok := segment.End()
		overlap = overlap || !ok || end > x.start
		return false
	})
	if overlap {
		return ErrOverlapping
	}
	if err := p.buddy.Set(toRawSegment(segment), true); err != nil {
		return err
	}
	p.tree.ReplaceOrInsert(entry[T]{start: segment.Start(), segment: segment, value: t})
	return nil
}

// Release removes and returns the value reserved at vaddr. vaddr must
// be the exact start address passed to Acquire.
func (p *Pages[T]) Release(vaddr base.VAddr) (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var zero T
	removed, ok := p.tree.Delete(entry[T]{start: vaddr})
	if !ok {
		return zero, ErrNotFound
	}
	if err := p.buddy.Set(toRawSegment(removed.segment), false); err != nil {
		panic("pages: release could not restore the buddy index: " + err.Error())
	}
	return removed.value, nil
}

// Get returns the value reserved exactly at vaddr.
func (p *Pages[T]) Get(vaddr base.VAddr) (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var zero T
	e, ok := p.tree.Get(entry[T]{start: vaddr})
	if !ok {
		return zero, false
	}
	return e.value, true
}

// Locate returns the reservation (if any) whose segment contains vaddr,
// which may have started before vaddr.
func (p *Pages[T]) Locate(vaddr base.VAddr) (base.Segment[base.VAddr], T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var (
		zero  T
		found entry[T]
		ok    bool
	)
	p.tree.DescendLessOrEqual(entry[T]{start: vaddr}, func(x entry[T]) bool {
		found, ok = x, true
		return false
	})
	if !ok || !found.segment.ContainsAddr(vaddr) {
		return base.Segment[base.VAddr]{}, zero, false
	}
	return found.segment, found.value, true
}

// Find returns an unclaimed sub-segment of the requested layout,
// without reserving it.
func (p *Pages[T]) Find(layout base.MapLayout) (base.Segment[base.VAddr], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	addr, err := p.buddy.Find(layout.Size())
	if err != nil {
		if err == buddy.ErrZeroSize {
			return base.Segment[base.VAddr]{}, ErrZeroSize
		}
		return base.Segment[base.VAddr]{}, ErrOutOfVirtualMemory
	}
	seg, ok := base.BySize(base.VAddr(addr), layout.Size())
	if !ok {
		return base.Segment[base.VAddr]{}, ErrOutOfVirtualMemory
	}
	return seg, nil
}

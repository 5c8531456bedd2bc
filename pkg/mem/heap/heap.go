// Package heap is the kernel's two-tier allocator: a size-classed slab
// heap backed by on-demand page mappings, falling back to a bootstrap
// heap usable before paging comes up. Grounded on original_source's
// kernel/src/mem/heap.rs and the crates/nekos-heap crate it wraps
// (UnitA/UnitB size classes, the fallback linked-list heap). Go has no
// #[global_allocator] hook — every ordinary allocation in this module
// still goes through the Go runtime's own heap — so this package is a
// standalone subsystem exercised directly (by boot and its own tests)
// rather than a replacement for `make`/`new` throughout the codebase,
// the same way the teacher's own `mem` package models physical memory
// as data structures without Go being able to intercept `malloc`.
package heap

import (
	"errors"
	"sync"

	"github.com/nekos-kernel/nekos/config"
	"github.com/nekos-kernel/nekos/pkg/base"
)

const pageSize = config.PageSize

// ErrSegmentTooSmall is returned when a Heap's reserved virtual segment
// cannot fit every configured size class's slot reservation.
var ErrSegmentTooSmall = errors.New("heap: virtual segment too small for configured size classes")

// ErrExhausted is returned when neither the slab heap nor the fallback
// heap could satisfy an allocation. The original's global allocator
// treats this as fatal (a null return from the #[global_allocator]
// panics); Alloc returns it instead so a caller can decide.
var ErrExhausted = errors.New("heap: out of memory")

// Heap is the combined slab-plus-fallback allocator, spec.md §4.3's
// "choose the smallest class whose pad-to-align size accommodates the
// request; on slab failure fall back to the bootstrap heap; on total
// failure return null" rule.
type Heap struct {
	mu       sync.Mutex
	classes  []class
	start    base.VAddr
	end      base.VAddr
	fallback *fallbackHeap
}

// New builds a Heap whose slab classes are carved sequentially out of
// slabSegment (the kernel heap VA range, config.KernelHeapSegment in
// practice, fronted by mmap) and whose bootstrap tier serves
// fallbackSegment — a disjoint VA range usable before paging comes up
// at all, standing in for original_source's `static mut FALLBACK` byte
// array. Like the rest of this module's virtual-memory bookkeeping
// (pkg/vmm's Area, pkg/mem/pages' Pages[T]), neither range is backed by
// a real byte buffer here: nothing in this Go port dereferences a
// kernel-heap VAddr directly the way the original's allocator backs
// Box/Vec content, since ordinary Go values already live on the Go
// runtime's own heap.
func New(mmap Mmap, slabSegment, fallbackSegment base.Segment[base.VAddr]) (*Heap, error) {
	end, hasEnd := slabSegment.End()
	if !hasEnd {
		return nil, ErrSegmentTooSmall
	}
	addr := slabSegment.Start()
	classes := make([]class, 0, len(config.SlabClassSizes)+len(config.LargeClassSizes))
	for _, size := range config.SlabClassSizes {
		classes = append(classes, newUnitA(mmap, size, &addr))
	}
	for _, size := range config.LargeClassSizes {
		classes = append(classes, newUnitB(mmap, size, &addr))
	}
	if addr > end {
		return nil, ErrSegmentTooSmall
	}
	fallback, err := newFallbackHeap(fallbackSegment)
	if err != nil {
		return nil, err
	}
	return &Heap{
		classes:  classes,
		start:    slabSegment.Start(),
		end:      end,
		fallback: fallback,
	}, nil
}

// Alloc satisfies layout from the smallest size class that fits it,
// falling back to the bootstrap heap, per spec.md §4.3. align > 65536
// is rejected outright, matching config.MaxHeapAlign.
func (h *Heap) Alloc(layout base.MapLayout) (base.VAddr, error) {
	if layout.Align() > config.MaxHeapAlign {
		return 0, ErrSegmentTooSmall
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.classes {
		if c.slotSize() < layout.Size() {
			continue
		}
		if c.slotSize()%layout.Align() != 0 {
			continue
		}
		if addr, ok := c.alloc(); ok {
			return addr, nil
		}
	}
	if addr, ok := h.fallback.alloc(layout); ok {
		return addr, nil
	}
	return 0, ErrExhausted
}

// Contains reports whether addr falls within the slab tier's reserved
// virtual range, for callers distinguishing a heap pointer from one
// that came from elsewhere (e.g. a Memory object's mapped range).
func (h *Heap) Contains(addr base.VAddr) bool {
	return addr >= h.start && addr < h.end
}

// Dealloc routes addr back to whichever tier owns it (by segment
// test), matching spec.md §4.3's dealloc contract.
func (h *Heap) Dealloc(addr base.VAddr, layout base.MapLayout) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.classes {
		if c.test(addr) {
			c.dealloc(addr)
			return
		}
	}
	if h.fallback.test(addr) {
		h.fallback.dealloc(addr, layout)
		return
	}
	panic("heap: dealloc of unknown address")
}

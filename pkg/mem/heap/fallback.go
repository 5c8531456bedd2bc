package heap

import (
	"sort"

	"github.com/nekos-kernel/nekos/pkg/base"
)

// freeRun is one free virtual range the fallback heap can still satisfy
// a request from.
type freeRun struct {
	start base.VAddr
	size  uintptr
}

// fallbackHeap is a first-fit free-list allocator over a fixed virtual
// range, standing in for nekos-heap::fallback's linked_list_allocator
// wrapper. It tracks free space only — see heap.go's doc comment for
// why there is no backing byte buffer to initialize here.
type fallbackHeap struct {
	start base.VAddr
	end   base.VAddr
	free  []freeRun
	live  map[base.VAddr]uintptr
}

func newFallbackHeap(segment base.Segment[base.VAddr]) (*fallbackHeap, error) {
	end, hasEnd := segment.End()
	if !hasEnd {
		return nil, ErrSegmentTooSmall
	}
	return &fallbackHeap{
		start: segment.Start(),
		end:   end,
		free:  []freeRun{{start: segment.Start(), size: segment.Len()}},
		live:  make(map[base.VAddr]uintptr),
	}, nil
}

func (f *fallbackHeap) test(addr base.VAddr) bool {
	return addr >= f.start && addr < f.end
}

// alloc finds the first free run whose aligned-up start still leaves
// room for layout.Size() bytes, splitting off any leftover.
func (f *fallbackHeap) alloc(layout base.MapLayout) (base.VAddr, bool) {
	for i, run := range f.free {
		aligned := alignUp(run.start, layout.Align())
		pad := aligned.Sub(run.start)
		if pad+layout.Size() > run.size {
			continue
		}
		remaining := run.size - pad - layout.Size()
		tailStart := aligned.Add(layout.Size())
		newRuns := make([]freeRun, 0, len(f.free)+1)
		newRuns = append(newRuns, f.free[:i]...)
		if pad > 0 {
			newRuns = append(newRuns, freeRun{start: run.start, size: pad})
		}
		if remaining > 0 {
			newRuns = append(newRuns, freeRun{start: tailStart, size: remaining})
		}
		newRuns = append(newRuns, f.free[i+1:]...)
		f.free = newRuns
		f.live[aligned] = layout.Size()
		return aligned, true
	}
	return 0, false
}

// dealloc returns addr's run to the free list and coalesces it with
// any directly adjacent neighbor, keeping the list from fragmenting
// into one entry per allocation over a long boot.
func (f *fallbackHeap) dealloc(addr base.VAddr, layout base.MapLayout) {
	size, ok := f.live[addr]
	if !ok {
		panic("heap: fallback dealloc of unknown address")
	}
	delete(f.live, addr)
	_ = layout

	f.free = append(f.free, freeRun{start: addr, size: size})
	sort.Slice(f.free, func(i, j int) bool { return f.free[i].start < f.free[j].start })

	merged := f.free[:1]
	for _, run := range f.free[1:] {
		last := &merged[len(merged)-1]
		if last.start.Add(last.size) == run.start {
			last.size += run.size
		} else {
			merged = append(merged, run)
		}
	}
	f.free = merged
}

func alignUp(v base.VAddr, align uintptr) base.VAddr {
	mask := align - 1
	return base.VAddr((uintptr(v) + mask) &^ mask)
}

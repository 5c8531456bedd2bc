// Package frames wraps a buddy.ArrayBuddy over physical memory in 4 KiB
// units, giving the rest of the kernel PAddr-typed frame allocation.
// Grounded on original_source's kernel/src/mem/frames/mod.rs, with the
// teacher's mem.Physmem_t (biscuit/src/mem/mem.go) contributing the
// "reserve a boot-time prefix before anyone else touches memory" shape
// and the package-level singleton-plus-mutex convention.
package frames

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nekos-kernel/nekos/config"
	"github.com/nekos-kernel/nekos/pkg/base"
	"github.com/nekos-kernel/nekos/pkg/mem/buddy"
)

// AllocError is the closed error set alloc/dealloc can report.
type AllocError int

const (
	// ErrUndersizeAlign is returned when layout.Align() < 4096: the frame
	// allocator only ever hands out page-granular memory.
	ErrUndersizeAlign AllocError = iota + 1
	// ErrOutOfMemory is returned when no free run of the requested size
	// exists anywhere in the managed range.
	ErrOutOfMemory
)

func (e AllocError) Error() string {
	switch e {
	case ErrUndersizeAlign:
		return "frames: alignment below page size"
	case ErrOutOfMemory:
		return "frames: out of memory"
	default:
		return "frames: unknown error"
	}
}

type allocator struct {
	mu    sync.Mutex
	buddy *buddy.ArrayBuddy
}

var singleton base.Singleton[allocator]

// Init reserves [segment.Start(), segment.Start()+reservedLen) as
// already taken (the kernel image plus any early bump allocations) and
// installs the global frame allocator over the remainder of segment.
// segment is given in byte PAddr units; reservedLen must be a multiple
// of 4 KiB — per Open Question (b), the boot sequence must align its
// bump pointer before handing control to the buddy, and Init asserts
// this rather than silently rounding.
func Init(segment base.Segment[base.PAddr], reservedLen uintptr, buf []byte) error {
	if reservedLen%config.PageSize != 0 {
		panic("frames: reserved prefix is not page aligned")
	}
	start := uintptr(segment.Start())
	end, hasEnd := segment.End()
	if !hasEnd {
		return errors.New("frames: physical memory segment must be bounded")
	}
	frameStart := ceilDiv(start, config.PageSize)
	frameEnd := uintptr(end) >> config.PageShift
	buddySeg, ok := base.ByPoints(frameStart, frameEnd)
	if !ok {
		return errors.New("frames: degenerate physical memory segment")
	}
	bd, err := buddy.NewArrayBuddy(buddySeg, castNodes(buf))
	if err != nil {
		return err
	}
	if reservedLen > 0 {
		reservedFrames := reservedLen >> config.PageShift
		reservedSeg, ok := base.BySize(frameStart, reservedFrames)
		if !ok {
			return errors.New("frames: reserved prefix out of range")
		}
		if err := bd.Set(reservedSeg, true); err != nil {
			return err
		}
	}
	singleton.Initialize(allocator{buddy: bd})
	logrus.WithFields(logrus.Fields{
		"frames_start": frameStart,
		"frames_end":   frameEnd,
		"reserved":     reservedLen,
	}).Info("frames: physical allocator initialized")
	return nil
}

// castNodes reinterprets a raw byte buffer as the buddy's node storage.
// The buddy never reads the buffer before zero-filling it itself, so
// this is just a type-level bridge between the caller's platform-memory
// byte slice and ArrayBuddy's []int8 parameter.
func castNodes(buf []byte) []int8 {
	out := make([]int8, len(buf))
	for i, b := range buf {
		out[i] = int8(b)
	}
	return out
}

func ceilDiv(a, b uintptr) uintptr { return (a + b - 1) / b }

// Alloc allocates a physically contiguous, layout.Align()-aligned range
// of layout.Size() bytes. A zero-size layout returns its bare alignment
// as a sentinel PAddr rather than consuming any frame, matching the
// convention original callers rely on for "I just need a unique token".
func Alloc(layout base.MapLayout) (base.PAddr, error) {
	if layout.Size() == 0 {
		return base.NewPAddr(layout.Align()), nil
	}
	if layout.Align() < config.PageSize {
		return 0, ErrUndersizeAlign
	}
	a := singleton.Get()
	a.mu.Lock()
	defer a.mu.Unlock()
	frame, err := a.buddy.Alloc(layout.Size() >> config.PageShift)
	if err != nil {
		return 0, ErrOutOfMemory
	}
	return base.NewPAddr(frame << config.PageShift), nil
}

// Dealloc releases a range previously returned by Alloc with the same
// layout. A mismatch between the two is a fatal invariant violation
// (deallocation of an unknown address), so this panics rather than
// returning an error.
func Dealloc(paddr base.PAddr, layout base.MapLayout) {
	if layout.Size() == 0 {
		if paddr != base.NewPAddr(layout.Align()) {
			panic("frames: dealloc of zero-size layout with mismatched sentinel")
		}
		return
	}
	if layout.Align() < config.PageSize {
		panic("frames: dealloc with undersize align")
	}
	if !layout.Check(uintptr(paddr)) {
		panic("frames: dealloc address is not aligned to its own layout")
	}
	a := singleton.Get()
	a.mu.Lock()
	defer a.mu.Unlock()
	frame := uintptr(paddr) >> config.PageShift
	size := layout.Size() >> config.PageShift
	if err := a.buddy.Dealloc(frame, size); err != nil {
		panic("frames: dealloc of an unknown address: " + err.Error())
	}
}

package heap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekos-kernel/nekos/pkg/base"
)

type fakeMmap struct {
	mapped map[base.VAddr]bool
}

func newFakeMmap() *fakeMmap { return &fakeMmap{mapped: make(map[base.VAddr]bool)} }

func (f *fakeMmap) Map(vaddr base.VAddr) {
	if f.mapped[vaddr] {
		panic("heap: double map of the same page")
	}
	f.mapped[vaddr] = true
}

func (f *fakeMmap) Unmap(vaddr base.VAddr) {
	if !f.mapped[vaddr] {
		panic("heap: unmap of a page never mapped")
	}
	delete(f.mapped, vaddr)
}

// testSegments reserves a virtual range comfortably larger than every
// configured size class's slot reservation needs (roughly 16 GiB: the
// large classes alone reserve size*64 each, up to 128 MiB*64): this is
// pure address-space bookkeeping, never backed by real memory until a
// slot is actually allocated, so reserving generously costs nothing.
func testSegments(t *testing.T) (base.Segment[base.VAddr], base.Segment[base.VAddr]) {
	slab, ok := base.ByPoints(base.VAddr(0x10_0000_0000), base.VAddr(0x10_0000_0000+1<<40))
	require.True(t, ok)
	fallback, ok := base.ByPoints(base.VAddr(0x1000), base.VAddr(0x20000))
	require.True(t, ok)
	return slab, fallback
}

func mustLayout(t *testing.T, size, align uintptr) base.MapLayout {
	l, ok := base.NewMapLayout(size, align)
	require.True(t, ok)
	return l
}

func TestAllocPicksSmallestFittingClass(t *testing.T) {
	mmap := newFakeMmap()
	slab, fallback := testSegments(t)
	h, err := New(mmap, slab, fallback)
	require.NoError(t, err)

	a, err := h.Alloc(mustLayout(t, 24, 8))
	require.NoError(t, err)
	require.NotZero(t, len(mmap.mapped), "a fresh slot should map at least one page")
	require.True(t, h.classes[0].test(a))
}

func TestAllocDeallocRoundTripUnmapsPage(t *testing.T) {
	mmap := newFakeMmap()
	slab, fallback := testSegments(t)
	h, err := New(mmap, slab, fallback)
	require.NoError(t, err)

	layout := mustLayout(t, 32, 32)
	a, err := h.Alloc(layout)
	require.NoError(t, err)
	require.NotEmpty(t, mmap.mapped)

	h.Dealloc(a, layout)
	require.Empty(t, mmap.mapped)
}

func TestAllocFallsBackWhenNoSlabClassFits(t *testing.T) {
	mmap := newFakeMmap()
	slab, fallback := testSegments(t)
	h, err := New(mmap, slab, fallback)
	require.NoError(t, err)

	// Larger than every configured class (128 MiB is the biggest).
	huge := mustLayout(t, 256*1024*1024, 4096)
	_, err = h.Alloc(huge)
	require.ErrorIs(t, err, ErrExhausted)
}

func TestFallbackAllocSatisfiesSmallRequestsOutsideSlabRange(t *testing.T) {
	mmap := newFakeMmap()
	slab, fallback := testSegments(t)
	h, err := New(mmap, slab, fallback)
	require.NoError(t, err)

	layout := mustLayout(t, 8, 8)
	_, ok := h.fallback.alloc(layout)
	require.True(t, ok)
	require.Empty(t, mmap.mapped, "the fallback tier never touches Mmap")
}

func TestDeallocOfUnknownAddressPanics(t *testing.T) {
	mmap := newFakeMmap()
	slab, fallback := testSegments(t)
	h, err := New(mmap, slab, fallback)
	require.NoError(t, err)

	require.Panics(t, func() {
		h.Dealloc(base.VAddr(0xdead_beef), mustLayout(t, 8, 8))
	})
}

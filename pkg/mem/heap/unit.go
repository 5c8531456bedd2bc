package heap

import "github.com/nekos-kernel/nekos/pkg/base"

// Mmap is the page-granular backing a size class asks for on demand.
// Grounded on nekos-heap's Mmap trait (crates/nekos-heap/src/lib.rs):
// a class never holds frames for slots nobody has allocated yet.
type Mmap interface {
	Map(vaddr base.VAddr)
	Unmap(vaddr base.VAddr)
}

// class is the shape both size-class flavors below satisfy, letting
// Heap keep one ordered slice instead of two.
type class interface {
	slotSize() uintptr
	test(addr base.VAddr) bool
	alloc() (base.VAddr, bool)
	dealloc(addr base.VAddr)
}

// slotCount is the fixed width of a unitA free list (unitB classes do
// not use it), matching nekos-heap's UnitA<S, T> where
// T = S*65536/4096 and its "up to 65536 slots" comment in
// config.SlotsPerSlabClass.
const slotCount = 65536

// unitA is a small-object class (slot size under one page): many slots
// share a page, so pages are mapped and unmapped by refcount as slots
// on them come and go. Grounded on nekos-heap's UnitA.
type unitA struct {
	mmap  Mmap
	size  uintptr
	addr  base.VAddr
	count []uint8
	next  []uint16
	head  int32 // -1 once the free list is exhausted
}

func newUnitA(mmap Mmap, size uintptr, addr *base.VAddr) *unitA {
	start := *addr
	*addr = start.Add(size * slotCount)
	pages := size * slotCount / pageSize
	next := make([]uint16, slotCount)
	for i := range next[:slotCount-1] {
		next[i] = uint16(i + 1)
	}
	next[slotCount-1] = slotCount - 1
	return &unitA{mmap: mmap, size: size, addr: start, count: make([]uint8, pages), next: next, head: 0}
}

func (u *unitA) slotSize() uintptr { return u.size }

func (u *unitA) test(addr base.VAddr) bool {
	return addr >= u.addr && addr < u.addr.Add(u.size*slotCount)
}

func (u *unitA) alloc() (base.VAddr, bool) {
	if u.head < 0 {
		return 0, false
	}
	x := uint16(u.head)
	if int(u.next[x]) != int(x) {
		u.head = int32(u.next[x])
	} else {
		u.head = -1
	}

	page0 := uintptr(x) * u.size / pageSize
	if u.count[page0] == 0 {
		u.mmap.Map(u.addr.Add(page0 * pageSize))
	}
	u.count[page0]++

	page1 := (uintptr(x)*u.size + u.size - 1) / pageSize
	if page1 != page0 {
		if u.count[page1] == 0 {
			u.mmap.Map(u.addr.Add(page1 * pageSize))
		}
		u.count[page1]++
	}
	return u.addr.Add(uintptr(x) * u.size), true
}

func (u *unitA) dealloc(addr base.VAddr) {
	x := uint16(addr.Sub(u.addr) / u.size)
	if u.head >= 0 {
		u.next[x] = uint16(u.head)
	} else {
		u.next[x] = x
	}
	u.head = int32(x)

	page0 := uintptr(x) * u.size / pageSize
	u.count[page0]--
	if u.count[page0] == 0 {
		u.mmap.Unmap(u.addr.Add(page0 * pageSize))
	}
	page1 := (uintptr(x)*u.size + u.size - 1) / pageSize
	if page1 != page0 {
		u.count[page1]--
		if u.count[page1] == 0 {
			u.mmap.Unmap(u.addr.Add(page1 * pageSize))
		}
	}
}

// unitB is a large-object class (slot size at least one page): a
// 64-slot bitmap, one class instance per size, each slot mapped and
// unmapped whole. Grounded on nekos-heap's UnitB.
type unitB struct {
	mmap Mmap
	size uintptr
	addr base.VAddr
	bits uint64 // 1 = free
}

func newUnitB(mmap Mmap, size uintptr, addr *base.VAddr) *unitB {
	start := *addr
	*addr = start.Add(size * 64)
	return &unitB{mmap: mmap, size: size, addr: start, bits: ^uint64(0)}
}

func (u *unitB) slotSize() uintptr { return u.size }

func (u *unitB) test(addr base.VAddr) bool {
	return addr >= u.addr && addr < u.addr.Add(u.size*64)
}

func (u *unitB) alloc() (base.VAddr, bool) {
	if u.bits == 0 {
		return 0, false
	}
	x := trailingZeros64(u.bits)
	u.bits &^= 1 << x
	pages := u.size / pageSize
	for i := uintptr(0); i < pages; i++ {
		u.mmap.Map(u.addr.Add(uintptr(x)*u.size + i*pageSize))
	}
	return u.addr.Add(uintptr(x) * u.size), true
}

func (u *unitB) dealloc(addr base.VAddr) {
	x := addr.Sub(u.addr) / u.size
	u.bits |= 1 << x
	pages := u.size / pageSize
	for i := uintptr(0); i < pages; i++ {
		u.mmap.Unmap(u.addr.Add(x*u.size + i*pageSize))
	}
}

func trailingZeros64(x uint64) uint {
	var n uint
	for x&1 == 0 {
		x >>= 1
		n++
	}
	return n
}

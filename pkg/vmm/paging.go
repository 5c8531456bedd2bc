package vmm

import (
	"sync"

	"github.com/nekos-kernel/nekos/config"
	"github.com/nekos-kernel/nekos/pkg/base"
	"github.com/nekos-kernel/nekos/pkg/mem/frames"
	"github.com/nekos-kernel/nekos/pkg/platform"
)

// Supported leaf alignments, Sv39 (4 KiB/2 MiB/1 GiB); Sv48 would add
// 512 GiB but is not distinguished at this layer — Config selects the
// VA layout, not the leaf size set.
const (
	Align4K = 4 * 1024
	Align2M = 2 * 1024 * 1024
	Align1G = 1024 * 1024 * 1024
)

// pagingEntry is a single Sv39 page-table entry: valid bit, three
// permission bits, user bit, global bit, then the PPN shifted into bit
// 10 and up. Grounded on the PagingEntry bit layout in
// kernel/src/platform/riscv64/paging.rs.
type pagingEntry uint64

func newInodeEntry(addr base.PAddr) pagingEntry {
	return pagingEntry(1 | (uint64(addr)>>12)<<10)
}

func newLeafEntry(paddr base.PAddr, perm base.Permission, user, global bool) pagingEntry {
	pte := uint64(1) | uint64(perm.AsBits())<<1
	if user {
		pte |= 1 << 4
	}
	if global {
		pte |= 1 << 5
	}
	pte |= (uint64(paddr) >> 12) << 10
	return pagingEntry(pte)
}

func (e pagingEntry) valid() bool { return e&1 != 0 }

// isInode reports whether the entry's permission bits are all zero,
// which in this encoding means it points at the next page-table level
// rather than being a leaf.
func (e pagingEntry) isInode() bool { return (e>>1)&7 == 0 }

func (e pagingEntry) addr() base.PAddr {
	return base.PAddr(((uint64(e) >> 10) & 0xFFFFFFFFFFF) << 12)
}

func (e pagingEntry) permission() base.Permission {
	p, _ := base.PermissionFromBits(uintptr((e >> 1) & 7))
	return p
}

func (e pagingEntry) user() bool   { return (e>>4)&1 != 0 }
func (e pagingEntry) global() bool { return (e>>5)&1 != 0 }

// pagingFrame is one 512-entry page-table level.
type pagingFrame struct {
	entries [512]pagingEntry
}

// frameTable stands in for the teacher's direct physical map (Dmap in
// biscuit/src/mem/mem.go): Go has no portable way to alias an arbitrary
// uintptr as a *pagingFrame, so interior page-table frames are tracked
// by PAddr in this table instead of being dereferenced directly.
var frameTable = platform.NewPhysTable[pagingFrame]()

func allocFrame() (base.PAddr, *pagingFrame, error) {
	layout, _ := base.NewMapLayout(config.PageSize, config.PageSize)
	paddr, err := frames.Alloc(layout)
	if err != nil {
		return 0, nil, err
	}
	f := &pagingFrame{}
	frameTable.Store(paddr, f)
	return paddr, f, nil
}

func freeFrame(paddr base.PAddr) {
	frameTable.Delete(paddr)
	layout, _ := base.NewMapLayout(config.PageSize, config.PageSize)
	frames.Dealloc(paddr, layout)
}

func frameAt(paddr base.PAddr) *pagingFrame {
	f, ok := frameTable.Load(paddr)
	if !ok {
		panic("vmm: dangling page-table frame reference")
	}
	return f
}

// resolve decomposes a Sv39 virtual address into its three 9-bit VPN
// fields and page offset, rejecting addresses that are not properly
// sign-extended above bit 38.
func resolve(addr base.VAddr) ([3]uint, uintptr, bool) {
	v := int64(addr)
	valid := (v << (64 - 39)) >> (64 - 39)
	if uint64(valid) != uint64(addr) {
		return [3]uint{}, 0, false
	}
	u := uintptr(addr)
	return [3]uint{
		uint(u>>30) & 0x1ff,
		uint(u>>21) & 0x1ff,
		uint(u>>12) & 0x1ff,
	}, u & 0xfff, true
}

func findEntry(root *pagingFrame, vpns []uint) *pagingEntry {
	child := &root.entries[vpns[0]]
	for _, idx := range vpns[1:] {
		if !child.valid() || !child.isInode() {
			panic("vmm: page-table walk hit a missing or leaf entry where an inode was expected")
		}
		child = &frameAt(child.addr()).entries[idx]
	}
	return child
}

func allocEntry(root *pagingFrame, vpns []uint) (*pagingEntry, error) {
	child := &root.entries[vpns[0]]
	for _, idx := range vpns[1:] {
		if !child.valid() {
			paddr, _, err := allocFrame()
			if err != nil {
				return nil, err
			}
			*child = newInodeEntry(paddr)
		}
		if !child.isInode() {
			panic("vmm: page-table walk hit a leaf entry where an inode was expected")
		}
		child = &frameAt(child.addr()).entries[idx]
	}
	return child, nil
}

// maintain collapses now-empty interior page-table frames bottom-up
// after an unmap, freeing each one back to the frame allocator.
func maintain(root *pagingFrame, vpns []uint) {
	for len(vpns) > 0 {
		child := findEntry(root, vpns)
		if !child.valid() || !child.isInode() {
			panic("vmm: maintain reached a missing or leaf entry")
		}
		frame := frameAt(child.addr())
		empty := true
		for _, e := range frame.entries {
			if e.valid() {
				empty = false
				break
			}
		}
		if !empty {
			return
		}
		freeFrame(child.addr())
		*child = pagingEntry(0)
		vpns = vpns[:len(vpns)-1]
	}
}

var (
	globalOnce      sync.Once
	globalFrame     *pagingFrame
	globalFrameAddr base.PAddr
	globalErr       error
	globalPaging    *RawPaging
)

// kernelVPN2Lo is the first top-level index of the Sv39 upper half:
// any address with bit 38 set (the kernel half, by the original's
// convention) resolves to a VPN2 in [256, 511].
const kernelVPN2Lo = 256

// InitGlobalTable builds the shared kernel top-level template: a frame
// whose entries[256:512] are pre-allocated inodes, one per upper-half
// gigabyte. Every address space's root copies these 256 entries by
// value at creation, so the *frames they point at* are shared objects —
// a kernel mapping installed after a process's root was created is
// still visible there, because growth happens inside an already-shared
// inode rather than by replacing the top-level entry itself. Must run
// once during boot before the first NewPaging or GlobalPaging call.
func InitGlobalTable() error {
	globalOnce.Do(func() {
		globalFrameAddr, globalFrame, globalErr = allocFrame()
		if globalErr != nil {
			return
		}
		for vpn2 := kernelVPN2Lo; vpn2 < 512; vpn2++ {
			paddr, _, err := allocFrame()
			if err != nil {
				globalErr = err
				return
			}
			globalFrame.entries[vpn2] = newInodeEntry(paddr)
		}
		globalPaging = &RawPaging{rootAddr: globalFrameAddr, root: globalFrame}
	})
	return globalErr
}

// GlobalPaging returns the RawPaging view of the shared kernel template
// frame, whose upper-half entries (VPN2 256-511) every address space's
// root copies at creation. KSpace builds its
// Area tree over this, so a kernel mapping made once is visible to every
// process without being repeated per address space.
func GlobalPaging() *RawPaging {
	if globalPaging == nil {
		panic("vmm: GlobalPaging called before InitGlobalTable")
	}
	return globalPaging
}

// PagingToken is the opaque value installed into the hardware paging
// register (satp on RISC-V) to switch address spaces.
type PagingToken uint64

// RawPaging is the Sv39 page-table backend: a three-level radix tree
// whose interior frames are owned by the frame allocator.
type RawPaging struct {
	mu       sync.Mutex
	rootAddr base.PAddr
	root     *pagingFrame
}

// NewPaging creates a page table with the global kernel upper half
// (VPN2 256-511) pre-installed, sharing the template's interior frames.
func NewPaging() (*RawPaging, error) {
	if globalFrame == nil {
		panic("vmm: NewPaging called before InitGlobalTable")
	}
	paddr, frame, err := allocFrame()
	if err != nil {
		return nil, err
	}
	copy(frame.entries[kernelVPN2Lo:], globalFrame.entries[kernelVPN2Lo:])
	return &RawPaging{rootAddr: paddr, root: frame}, nil
}

// Token returns the opaque satp-shaped value selecting this page table,
// mode field 0b1000 (Sv39).
func (p *RawPaging) Token() PagingToken {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PagingToken(uint64(0b1000)<<60 | uint64(p.rootAddr)>>12)
}

func pathFor(align uintptr, vpns [3]uint) ([]uint, bool) {
	switch align {
	case Align4K:
		return []uint{vpns[0], vpns[1], vpns[2]}, true
	case Align2M:
		return []uint{vpns[0], vpns[1]}, true
	case Align1G:
		return []uint{vpns[0]}, true
	default:
		return nil, false
	}
}

// Map installs a leaf at vaddr for the power-of-two align (4 KiB, 2
// MiB, or 1 GiB). Overlap with an existing leaf is a fatal invariant
// violation, not an error, matching the original's "Overlapping"
// assertion.
func (p *RawPaging) Map(vaddr base.VAddr, paddr base.PAddr, align uintptr, perm base.Permission, user, global bool) error {
	vpns, offset, ok := resolve(vaddr)
	if !ok || uintptr(vaddr)&(align-1) != 0 {
		return ErrInvalidVAddr
	}
	if offset != 0 {
		panic("vmm: resolve produced a nonzero offset for an align-checked vaddr")
	}
	if uintptr(paddr)&(align-1) != 0 || uint64(paddr) >= (uint64(1)<<52) {
		return ErrInvalidPAddr
	}
	path, ok := pathFor(align, vpns)
	if !ok {
		return ErrAlignNotSupported
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, err := allocEntry(p.root, path)
	if err != nil {
		return err
	}
	if entry.valid() {
		panic("vmm: map would overlap an existing leaf")
	}
	*entry = newLeafEntry(paddr, perm, user, global)
	return nil
}

// Unmap removes the leaf at vaddr for align, returning its backing
// physical address, and collapses any now-empty interior frames.
func (p *RawPaging) Unmap(vaddr base.VAddr, align uintptr) (base.PAddr, error) {
	vpns, offset, ok := resolve(vaddr)
	if !ok || uintptr(vaddr)&(align-1) != 0 {
		return 0, ErrInvalidVAddr
	}
	if offset != 0 {
		panic("vmm: resolve produced a nonzero offset for an align-checked vaddr")
	}
	path, ok := pathFor(align, vpns)
	if !ok {
		return 0, ErrAlignNotSupported
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	entry := findEntry(p.root, path)
	if !entry.valid() {
		panic("vmm: unmap of an address with no installed leaf")
	}
	paddr := entry.addr()
	*entry = pagingEntry(0)
	maintain(p.root, path[:len(path)-1])
	return paddr, nil
}

// FlushTLB and FlushIns are platform-scoped primitives (spec.md Open
// Question (a)): no syscall exposes cross-hart invalidation, so callers
// that change shared mappings must invoke these themselves. In this
// hosted build there is no real TLB or instruction cache to flush; they
// exist so call sites (Area.Unmap, kernel text patching) have the right
// shape to call into a real platform layer.
func (p *RawPaging) FlushTLB() {}
func (p *RawPaging) FlushIns() {}

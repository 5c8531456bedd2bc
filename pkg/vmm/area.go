package vmm

import (
	"github.com/nekos-kernel/nekos/pkg/base"
	"github.com/nekos-kernel/nekos/pkg/mem/pages"
)

// leaf is the (Map, Permission) payload an Area child holds when it is
// not a nested sub-area.
type leaf struct {
	Map        Map
	Permission base.Permission
}

type child = base.Either[*Area, leaf]

// Area is a node in a per-address-space tree covering a virtual
// Segment[VAddr]. Its children, tracked in pages, are either nested
// sub-areas or (Map, Permission) leaves. Every Area in one address
// space shares the same *RawPaging instance. Grounded on
// original_source's kernel/src/proc/vmm/area.rs (and its near-identical
// kernel-space sibling karea.rs), ported operation-for-operation.
type Area struct {
	segment base.Segment[base.VAddr]
	paging  *RawPaging
	pages   *pages.Pages[child]
}

// NewArea constructs a root Area over segment, backed by paging. Used
// directly only to build the root of a UserSpace/KSpace; every other
// Area is produced by Create/FindCreate.
func NewArea(segment base.Segment[base.VAddr], paging *RawPaging) (*Area, error) {
	p, err := pages.New[child](segment)
	if err != nil {
		return nil, translatePagesErr(err)
	}
	return &Area{segment: segment, paging: paging, pages: p}, nil
}

func translatePagesErr(err error) error {
	switch err {
	case pages.ErrZeroSize:
		return ErrZeroSize
	case pages.ErrOutOfRange:
		return ErrOutOfRange
	case pages.ErrOverlapping:
		return ErrOverlapping
	case pages.ErrNotFound:
		return ErrNotFound
	case pages.ErrOutOfVirtualMemory:
		return ErrOutOfVirtualMemory
	default:
		return err
	}
}

// Create reserves [vaddr, vaddr+size) as a new child Area sharing this
// area's page table.
func (a *Area) Create(vaddr base.VAddr, size uintptr) (*Area, error) {
	segment, ok := base.BySize(vaddr, size)
	if !ok {
		return nil, ErrOutOfRange
	}
	c, err := NewArea(segment, a.paging)
	if err != nil {
		return nil, err
	}
	if err := a.pages.Acquire(segment, base.Left[*Area, leaf](c)); err != nil {
		return nil, translatePagesErr(err)
	}
	return c, nil
}

// FindCreate is Create preceded by a Find(layout) over this area's free
// space.
func (a *Area) FindCreate(layout base.MapLayout) (*Area, error) {
	segment, err := a.pages.Find(layout)
	if err != nil {
		return nil, translatePagesErr(err)
	}
	c, err := NewArea(segment, a.paging)
	if err != nil {
		return nil, err
	}
	if err := a.pages.Acquire(segment, base.Left[*Area, leaf](c)); err != nil {
		return nil, translatePagesErr(err)
	}
	return c, nil
}

// Map installs m at vaddr with the given permission: it acquires
// by_size(vaddr, m.Len()*align) in this area's bookkeeper and, for each
// index, installs a page-table leaf vaddr+i*align -> m.Index(i) with
// user=true, global=false.
func (a *Area) Map(vaddr base.VAddr, m Map, permission base.Permission) error {
	layout := m.Layout()
	if !layout.Check(uintptr(vaddr)) {
		return ErrBadAddress
	}
	if !alignSupported(layout.Align()) {
		return ErrAlignNotSupported
	}
	if !permissionSupported(permission) {
		return ErrPermissionNotSupported
	}
	segment, ok := base.BySize(vaddr, layout.Size())
	if !ok {
		return ErrOutOfRange
	}
	if err := a.pages.Acquire(segment, base.Right[*Area, leaf](leaf{Map: m, Permission: permission})); err != nil {
		return translatePagesErr(err)
	}
	installLeaves(a.paging, segment.Start(), m, permission)
	return nil
}

// FindMap is Map preceded by a Find(m.Layout()) over this area's free
// space, returning the chosen address.
func (a *Area) FindMap(m Map, permission base.Permission) (base.VAddr, error) {
	layout := m.Layout()
	if !alignSupported(layout.Align()) {
		return 0, ErrAlignNotSupported
	}
	if !permissionSupported(permission) {
		return 0, ErrPermissionNotSupported
	}
	segment, err := a.pages.Find(layout)
	if err != nil {
		return 0, translatePagesErr(err)
	}
	if err := a.pages.Acquire(segment, base.Right[*Area, leaf](leaf{Map: m, Permission: permission})); err != nil {
		return 0, translatePagesErr(err)
	}
	installLeaves(a.paging, segment.Start(), m, permission)
	return segment.Start(), nil
}

func installLeaves(paging *RawPaging, start base.VAddr, m Map, permission base.Permission) {
	align := m.Layout().Align()
	for i := uintptr(0); i < m.Len(); i++ {
		vaddr := start.Add(i * align)
		paddr := m.Index(i)
		if err := paging.Map(vaddr, paddr, align, permission, true, false); err != nil {
			panic("vmm: area map produced a page-table leaf the backend rejected: " + err.Error())
		}
	}
}

// Unmap removes the leaf reserved at vaddr, both from this area's
// bookkeeper and from the page table. It returns ErrUnmapAnArea if
// vaddr names a sub-area rather than a leaf.
func (a *Area) Unmap(vaddr base.VAddr) error {
	v, ok := a.pages.Get(vaddr)
	if !ok {
		return ErrNotFound
	}
	if v.IsLeft() {
		return ErrUnmapAnArea
	}
	removed, err := a.pages.Release(vaddr)
	if err != nil {
		panic("vmm: unmap could not release a reservation it just confirmed exists")
	}
	l := removed.UnwrapRight()
	align := l.Map.Layout().Align()
	for i := uintptr(0); i < l.Map.Len(); i++ {
		vaddr := vaddr.Add(i * align)
		if _, err := a.paging.Unmap(vaddr, align); err != nil {
			panic("vmm: area unmap left the page table inconsistent: " + err.Error())
		}
	}
	return nil
}

// Read walks the tree starting at addr, delegating each covered leaf
// region to its map's random read after checking the read permission
// bit, and recursing into sub-areas.
func (a *Area) Read(addr base.VAddr, buf []byte) error {
	seg, ok := base.BySize(addr, uintptr(len(buf)))
	if !ok {
		return ErrOutOfRange
	}
	if !a.segment.Contains(seg) {
		return ErrOutOfRange
	}
	for len(buf) > 0 {
		locSeg, val, ok := a.pages.Locate(addr)
		if !ok {
			return ErrBadAddress
		}
		n := chunkLen(locSeg, addr, uintptr(len(buf)))
		if val.IsLeft() {
			if err := val.UnwrapLeft().Read(addr, buf[:n]); err != nil {
				return err
			}
		} else {
			l := val.UnwrapRight()
			if !l.Permission.Read {
				return ErrPermissionDenied
			}
			ra, ok := l.Map.(RandomAccess)
			if !ok {
				panic("vmm: leaf map does not support random access")
			}
			if err := ra.Read(addr.Sub(locSeg.Start()), buf[:n]); err != nil {
				return err
			}
		}
		addr = addr.Add(n)
		buf = buf[n:]
	}
	return nil
}

// Write is Read's mirror image, checking the write permission bit.
func (a *Area) Write(addr base.VAddr, buf []byte) error {
	seg, ok := base.BySize(addr, uintptr(len(buf)))
	if !ok {
		return ErrOutOfRange
	}
	if !a.segment.Contains(seg) {
		return ErrOutOfRange
	}
	for len(buf) > 0 {
		locSeg, val, ok := a.pages.Locate(addr)
		if !ok {
			return ErrBadAddress
		}
		n := chunkLen(locSeg, addr, uintptr(len(buf)))
		if val.IsLeft() {
			if err := val.UnwrapLeft().Write(addr, buf[:n]); err != nil {
				return err
			}
		} else {
			l := val.UnwrapRight()
			if !l.Permission.Write {
				return ErrPermissionDenied
			}
			ra, ok := l.Map.(RandomAccess)
			if !ok {
				panic("vmm: leaf map does not support random access")
			}
			if err := ra.Write(addr.Sub(locSeg.Start()), buf[:n]); err != nil {
				return err
			}
		}
		addr = addr.Add(n)
		buf = buf[n:]
	}
	return nil
}

func chunkLen(locSeg base.Segment[base.VAddr], addr base.VAddr, remaining uintptr) uintptr {
	end := locSeg.WrappingEnd()
	n := uintptr(end) - uintptr(addr)
	if end == 0 {
		n = ^uintptr(0) - uintptr(addr) + 1
	}
	if remaining < n {
		return remaining
	}
	return n
}

// Segment returns the virtual range this area covers.
func (a *Area) Segment() base.Segment[base.VAddr] { return a.segment }

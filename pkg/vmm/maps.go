package vmm

import "github.com/nekos-kernel/nekos/pkg/base"

// Map is the abstract backing for an Area leaf: a sequence of
// layout.Len() aligned physical frames. Concrete implementations
// (KMap, Memory, PhysBox) live in pkg/objects; vmm only needs the
// contract to install page-table leaves and delegate reads/writes.
type Map interface {
	Layout() base.MapLayout
	Len() uintptr
	Index(i uintptr) base.PAddr
}

// RandomAccess is implemented by Map values that support byte-level
// reads and writes within their span, independent of page-table
// mapping (spec.md §3, "optionally random read/write").
type RandomAccess interface {
	Read(offset uintptr, buf []byte) error
	Write(offset uintptr, buf []byte) error
}

func alignSupported(align uintptr) bool {
	switch align {
	case Align4K, Align2M, Align1G:
		return true
	default:
		return false
	}
}

// permissionSupported matches Sv39's legal PTE permission combinations,
// grounded on the original's PAGING_PERMISSION table
// (platform/riscv64/rt.rs): only {EO, RO, RW, RX, RWX} are valid — the
// architecture reserves write-without-read, so a Permission with Write
// but not Read is rejected exactly like the all-zero (no access) case.
func permissionSupported(p base.Permission) bool {
	if !p.Read && !p.Write && !p.Execute {
		return false
	}
	if p.Write && !p.Read {
		return false
	}
	return true
}

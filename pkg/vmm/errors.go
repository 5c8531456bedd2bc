// Package vmm implements the architecture-neutral paging backend and
// the per-address-space Area tree built on top of it. Grounded on
// original_source's kernel/src/platform/riscv64/paging.rs (the Sv39
// page-table walk) and kernel/src/proc/vmm/area.rs (the Area tree),
// adapted to a Go-idiomatic shape via the teacher's vm package
// (biscuit/src/vm/as.go) for the embedded-mutex, page-fault-tolerant
// access style.
package vmm

import "errors"

// Paging map/unmap errors, spec.md §4.5.
var (
	ErrInvalidVAddr           = errors.New("vmm: invalid virtual address")
	ErrInvalidPAddr           = errors.New("vmm: invalid physical address")
	ErrAlignNotSupported      = errors.New("vmm: alignment not supported by this platform")
	ErrPermissionNotSupported = errors.New("vmm: permission not supported by this platform")
)

// Area tree errors, spec.md §4.6.
var (
	ErrZeroSize           = errors.New("vmm: zero size")
	ErrOutOfRange         = errors.New("vmm: out of range")
	ErrOverlapping        = errors.New("vmm: overlapping")
	ErrBadAddress         = errors.New("vmm: bad address")
	ErrOutOfVirtualMemory = errors.New("vmm: out of virtual memory")
	ErrNotFound           = errors.New("vmm: no reservation at that address")
	ErrUnmapAnArea        = errors.New("vmm: target is a sub-area, not a leaf")
	ErrPermissionDenied   = errors.New("vmm: permission denied")
)

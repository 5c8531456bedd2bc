// Package base holds the address, segment, layout and permission types
// shared by every memory-management package in the kernel. They are kept
// free of any subsystem-specific logic so mem, vmm, proc and syscall can
// all import them without a dependency cycle.
package base

import "fmt"

// PAddr is a physical address. It wraps arithmetic the same way the
// teacher's mem.Pa_t does, so overflowing math during segment bookkeeping
// never panics.
type PAddr uintptr

// VAddr is a virtual address.
type VAddr uintptr

// NewPAddr constructs a PAddr from a raw machine word.
func NewPAddr(x uintptr) PAddr { return PAddr(x) }

// NewVAddr constructs a VAddr from a raw machine word.
func NewVAddr(x uintptr) VAddr { return VAddr(x) }

// Add returns p+n with wraparound.
func (p PAddr) Add(n uintptr) PAddr { return PAddr(uintptr(p) + n) }

// Add returns v+n with wraparound.
func (v VAddr) Add(n uintptr) VAddr { return VAddr(uintptr(v) + n) }

// Sub returns the distance between two virtual addresses. Callers must
// ensure b <= a; this mirrors the original's unchecked `a - b` on usize.
func (v VAddr) Sub(o VAddr) uintptr { return uintptr(v) - uintptr(o) }

func (p PAddr) String() string { return fmt.Sprintf("paddr(%#x)", uintptr(p)) }
func (v VAddr) String() string { return fmt.Sprintf("vaddr(%#x)", uintptr(v)) }

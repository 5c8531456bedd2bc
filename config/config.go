// Package config collects every compile-time constant the kernel fixes:
// virtual memory layout, scheduling parameters, heap size classes, and
// process limits. Grounded on original_source's kernel/src/config.rs and
// arch/riscv64/consts.rs, and on the teacher's limits package, which
// keeps exactly this kind of flat constant table in one place rather than
// scattering magic numbers through the subsystems that use them.
package config

import (
	"time"

	"github.com/nekos-kernel/nekos/pkg/base"
)

// PageShift and PageSize describe the base 4 KiB page granularity every
// frame, slab class and paging leaf is measured in.
const (
	PageShift = 12
	PageSize  = 1 << PageShift
)

// Scheduler timing, spec.md §4.8.
const (
	Timeslice             = 10 * time.Millisecond
	VRuntimeStepPerMicros = 1_000_000_000 // numerator of 1e9/priority microseconds
)

// Priority bounds, spec.md §3 ("Task").
const (
	PriorityMin     = 1
	PriorityDefault = 1_000
	PriorityMax     = 1_000_000
)

// Handle table layout, spec.md §4.9.
const (
	// ProcessSelfHandle is the well-known id of a process's handle to
	// itself, installed at process creation.
	ProcessSelfHandle = 0
	// ReservedHandles is the width of the reserved id window; dynamically
	// issued ids start here and increase monotonically.
	ReservedHandles = 1
)

// Kernel heap size classes, spec.md §4.3.
var SlabClassSizes = []uintptr{32, 64, 128, 256, 512, 1024, 2048}

// LargeClassSizes enumerates the bitmap-indexed single-slot classes, from
// 4 KiB up to 128 MiB.
var LargeClassSizes = func() []uintptr {
	var out []uintptr
	for sz := uintptr(4 * 1024); sz <= 128*1024*1024; sz *= 2 {
		out = append(out, sz)
	}
	return out
}()

// SlotsPerSlabClass bounds the number of slots a single slab class table
// may track, spec.md §4.3 ("a table of up to 65536 slots").
const SlotsPerSlabClass = 65536

// MaxHeapAlign is the largest alignment the kernel heap will service;
// anything larger is rejected outright rather than attempted and failed.
const MaxHeapAlign = 65536

// FallbackHeapSize sizes the bootstrap linked-list heap usable before
// paging comes up.
const FallbackHeapSize = 4 * 1024 * 1024

// Thread stack and TLS layout, spec.md §6 ("User-visible constants").
const (
	StackAlign  = 16
	StackOffset = 0
)

var ThreadStackLayout = mustLayout(64*1024, PageSize)

func mustLayout(size, align uintptr) base.MapLayout {
	l, ok := base.NewMapLayout(size, align)
	if !ok {
		panic("config: bad static layout")
	}
	return l
}

// ELFMachineRISCV is the ELF e_machine value the loader contract accepts.
const ELFMachineRISCV = 243

// Virtual memory layout (Sv39 mapping; Sv48 extends only the phys
// window), spec.md §6.
var (
	UserSegment       = mustSegment(0x0, 0x40_0000_0000)
	PhysMapSegment    = mustSegment(0x0, 0x40_0000_0000)
	KernelTextSegment = mustSegment(0xFFFFFFC0_00000000, 0xFFFFFFC0_40000000)
	KernelHeapSegment = mustSegment(0xFFFFFFC0_40000000, 0xFFFFFFFF_C0000000)
	GlobalCapSegment  = mustOpenSegment(0xFFFFFFFF_C0000000)
)

func mustSegment(start, end uintptr) base.Segment[base.VAddr] {
	s, ok := base.ByPoints(base.VAddr(start), base.VAddr(end))
	if !ok {
		panic("config: bad static virtual segment")
	}
	return s
}

func mustOpenSegment(start uintptr) base.Segment[base.VAddr] {
	s, ok := base.NewSegment[base.VAddr](base.VAddr(start), nil)
	if !ok {
		panic("config: bad static virtual segment")
	}
	return s
}

// TrampolineVAddr is the well-known virtual address, identical in every
// address space, where the single execute-only trampoline page lives.
// Placed at the base of the global capability region.
var TrampolineVAddr = base.VAddr(uintptr(GlobalCapSegment.Start()))

// TrapFrameVAddr is the well-known virtual address of the per-hart trap
// frame, immediately above the trampoline page.
var TrapFrameVAddr = TrampolineVAddr.Add(PageSize)

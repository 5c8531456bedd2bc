package platform

import "github.com/nekos-kernel/nekos/pkg/base"

// CPU is one hart entry discovered off the device tree, grounded on
// original_source's startup.rs scan(): `dt.cpus()` yields an id plus a
// timebase-frequency.
type CPU struct {
	ID        uint64
	Frequency uint64
}

// MemoryRegion is the single physical memory range the boot sequence
// hands to the frame allocator. original_source panics on a second
// region (startup.rs: "do not support > 1 memory regions"); this module
// keeps that same restriction rather than generalizing to a list no
// caller would ever populate past index 0.
type MemoryRegion struct {
	Start base.PAddr
	Size  uintptr
}

// VirtioDevice is one `compatible = "virtio,mmio"` node discovered off
// the device tree: an MMIO window plus the interrupt lines it raises.
// Grounded on startup.rs's solve(), which reads the node's "reg" and
// "interrupts" properties and calls drivers::manager::register.
type VirtioDevice struct {
	Base    base.PAddr
	Size    uintptr
	IRQs    []uint32
}

// DeviceTree is the decoded shape original_source's scan() walks a raw
// flattened device tree blob to build. A hosted build has no real FDT
// bytes to parse — no platform firmware hands this kernel an `opaque`
// pointer — and no flattened-device-tree library appears anywhere in
// the retrieval pack to parse one with even if it did; boot is handed
// this struct directly instead, preserving scan()'s actual contract
// (discover CPUs, the timebase frequency, the one physical memory
// region, and every virtio-mmio device) without inventing an unused
// byte-format parser.
type DeviceTree struct {
	CPUs    []CPU
	Memory  MemoryRegion
	Virtios []VirtioDevice
}

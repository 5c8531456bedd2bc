// Package boot wires every subsystem into a running kernel: the frame
// allocator, the kernel heap, the global page table, the scheduler, and
// the init process, then wakes the remaining harts. Grounded on
// original_source's kernel/src/platform/riscv64/startup.rs (_start/
// _start2/_start3 and the scan()/solve() device-tree walk) and
// kernel_main's call sequence.
package boot

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/nekos-kernel/nekos/config"
	"github.com/nekos-kernel/nekos/pkg/base"
	"github.com/nekos-kernel/nekos/pkg/loader"
	"github.com/nekos-kernel/nekos/pkg/mem/frames"
	"github.com/nekos-kernel/nekos/pkg/mem/heap"
	"github.com/nekos-kernel/nekos/pkg/memfs"
	"github.com/nekos-kernel/nekos/pkg/platform"
	"github.com/nekos-kernel/nekos/pkg/proc"
	"github.com/nekos-kernel/nekos/pkg/sched"
	"github.com/nekos-kernel/nekos/pkg/syscall"
	"github.com/nekos-kernel/nekos/pkg/trap"
	"github.com/nekos-kernel/nekos/pkg/vmm"
)

// Config is everything the boot hart needs, standing in for the raw
// (cpuid, fdt_ptr) pair _start receives on real hardware: a
// pre-decoded device tree (see pkg/platform's doc comment on why this
// build has no FDT bytes to parse), the platform collaborator, and the
// program images memfs should serve.
type Config struct {
	DeviceTree  platform.DeviceTree
	Provider    platform.Provider
	Images      map[string][]byte
	InitProgram string
}

// Result is everything Boot brings up, for a caller (cmd/nekos, or a
// test) to drive further.
type Result struct {
	Scheduler *sched.Scheduler
	Heap      *heap.Heap
	Init      *proc.Process
	Virtios   []platform.VirtioDevice
}

// Boot runs the sequence spec.md §9's "Boot contract" describes: zero
// bss is Go's job (there is no freestanding image here), so this starts
// at device-tree discovery — frame allocator, global page table, kernel
// heap, memfs, scheduler, the init process — and finishes by waking
// every hart besides the boot hart itself (DeviceTree.CPUs[0], by
// convention the hart Boot itself runs on).
func Boot(cfg Config) (*Result, error) {
	if len(cfg.DeviceTree.CPUs) == 0 {
		return nil, fmt.Errorf("boot: device tree reports no CPUs")
	}
	if cfg.DeviceTree.Memory.Size == 0 {
		return nil, fmt.Errorf("boot: device tree reports no usable memory")
	}

	if err := initFrames(cfg.DeviceTree.Memory); err != nil {
		return nil, fmt.Errorf("boot: frame allocator: %w", err)
	}
	if err := vmm.InitGlobalTable(); err != nil {
		return nil, fmt.Errorf("boot: global page table: %w", err)
	}
	if _, err := vmm.InitKSpace(); err != nil {
		return nil, fmt.Errorf("boot: kernel address space: %w", err)
	}
	kernelHeap, err := initHeap()
	if err != nil {
		return nil, fmt.Errorf("boot: kernel heap: %w", err)
	}

	memfs.InitGlobal(cfg.Images)
	fs := memfs.Global()

	virtios, virtioErr := registerVirtios(cfg.DeviceTree.Virtios)
	if virtioErr != nil {
		logrus.WithError(virtioErr).Warn("boot: some virtio-mmio nodes were rejected")
	}

	scheduler := sched.New()
	table := syscall.NewTable(fs)

	init, err := createInit(fs, cfg.InitProgram, table, scheduler)
	if err != nil {
		return nil, fmt.Errorf("boot: init process: %w", err)
	}

	if err := wakeSecondaryHarts(cfg.Provider, cfg.DeviceTree.CPUs); err != nil {
		logrus.WithError(err).Warn("boot: some harts failed to wake")
	}

	return &Result{
		Scheduler: scheduler,
		Heap:      kernelHeap,
		Init:      init,
		Virtios:   virtios,
	}, nil
}

func initFrames(region platform.MemoryRegion) error {
	segment, ok := base.BySize(region.Start, region.Size)
	if !ok {
		return fmt.Errorf("degenerate physical memory region")
	}
	frameCount := region.Size / config.PageSize
	// ArrayBuddy needs 2 tree nodes per frame, per pkg/mem/buddy's
	// NewArrayBuddy doc comment.
	buf := make([]byte, 2*frameCount)
	return frames.Init(segment, 0, buf)
}

func initHeap() (*heap.Heap, error) {
	heapEnd, hasEnd := config.KernelHeapSegment.End()
	if !hasEnd {
		return nil, fmt.Errorf("kernel heap segment has no end")
	}
	fallbackStart := base.VAddr(uintptr(heapEnd) - config.FallbackHeapSize)
	fallbackSeg, ok := base.ByPoints(fallbackStart, heapEnd)
	if !ok {
		return nil, fmt.Errorf("fallback heap region does not fit below the kernel heap segment's end")
	}
	slabSeg, ok := base.ByPoints(config.KernelHeapSegment.Start(), fallbackStart)
	if !ok {
		return nil, fmt.Errorf("slab heap region does not fit above the fallback reservation")
	}
	return heap.New(kernelHeapMmap{}, slabSeg, fallbackSeg)
}

// registerVirtios validates every compatible = "virtio,mmio" node the
// device tree reported, the hosted stand-in for startup.rs's solve()
// registering each node with the driver manager. A node whose MMIO
// window cannot even hold one page is rejected rather than aborting the
// whole boot, mirroring the teacher's own pci/ahci device enumeration
// tolerating partial failures; every rejection is aggregated into one
// error instead of being logged and silently dropped.
func registerVirtios(devices []platform.VirtioDevice) ([]platform.VirtioDevice, error) {
	var errs *multierror.Error
	ok := make([]platform.VirtioDevice, 0, len(devices))
	for i, d := range devices {
		if d.Size < config.PageSize {
			errs = multierror.Append(errs, fmt.Errorf("virtio device %d at %s: mmio window smaller than a page", i, d.Base))
			continue
		}
		ok = append(ok, d)
	}
	return ok, errs.ErrorOrNil()
}

// createInit loads cfg's init program, builds its process, and pushes
// its first thread onto scheduler — the syscall-visible process_create
// path (proc.Create) does the same loader.Load-then-Spawn sequence, but
// boot needs the spawned *proc.Thread itself to hand to the scheduler,
// which proc.Create does not expose.
func createInit(fs memfs.FS, name string, dispatch proc.Dispatcher, scheduler *sched.Scheduler) (*proc.Process, error) {
	image, err := loader.Load(fs, name)
	if err != nil {
		return nil, err
	}
	p := proc.NewProcess(image.Space, image.TLS)
	thread, err := p.Spawn(idleHart{}, dispatch, &trap.Frame{}, image.Entry, 0)
	if err != nil {
		return nil, err
	}
	scheduler.Spawn(thread)
	return p, nil
}

// wakeSecondaryHarts wakes every hart besides the boot hart (the first
// entry in DeviceTree.CPUs, by convention), aggregating per-hart
// failures into one error rather than aborting the rest of the wake
// sequence on the first bad hart.
func wakeSecondaryHarts(provider platform.Provider, cpus []platform.CPU) error {
	var errs *multierror.Error
	for _, cpu := range cpus[1:] {
		if err := provider.HartStart(cpu.ID, config.TrampolineVAddr, 0); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("hart %d: %w", cpu.ID, err))
		}
	}
	return errs.ErrorOrNil()
}

package boot

import (
	"github.com/nekos-kernel/nekos/config"
	"github.com/nekos-kernel/nekos/pkg/base"
	"github.com/nekos-kernel/nekos/pkg/mem/frames"
	"github.com/nekos-kernel/nekos/pkg/vmm"
)

var pageLayout = func() base.MapLayout {
	l, ok := base.NewMapLayout(config.PageSize, config.PageSize)
	if !ok {
		panic("boot: bad static page layout")
	}
	return l
}()

// kernelHeapMmap backs heap.Mmap with real frames installed straight
// into the global kernel page table, bypassing pkg/vmm's Area/Map
// object tracking: kernel heap pages are never owned by a user-facing
// Memory object the way objects.Memory's frames are, so there is no
// leaf to install through an Area — only a raw mapping, the same way
// original_source's SlabMmap calls page_table.map directly instead of
// going through an Area.
type kernelHeapMmap struct{}

func (kernelHeapMmap) Map(vaddr base.VAddr) {
	paddr, err := frames.Alloc(pageLayout)
	if err != nil {
		panic("boot: out of physical memory for kernel heap")
	}
	if err := vmm.GlobalPaging().Map(vaddr, paddr, vmm.Align4K, base.PermRW, false, true); err != nil {
		panic(err)
	}
}

func (kernelHeapMmap) Unmap(vaddr base.VAddr) {
	paddr, err := vmm.GlobalPaging().Unmap(vaddr, vmm.Align4K)
	if err != nil {
		panic(err)
	}
	frames.Dealloc(paddr, pageLayout)
}

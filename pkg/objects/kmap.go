package objects

import "github.com/nekos-kernel/nekos/pkg/base"

// KMap is a Map over a physical range the kernel already owns and never
// frees through the frame allocator — the trampoline page, or any other
// linker-provided range installed as a global leaf. Grounded on
// original_source's kernel/src/platform/riscv64/trap.rs's use of
// `KMap::new(paddr, layout)` to install the trampoline.
type KMap struct {
	base   base.PAddr
	layout base.MapLayout
}

// NewKMap wraps [paddr, paddr+layout.Size()) as a Map, without taking
// ownership of the frames (they are never released back to the frame
// allocator through this type).
func NewKMap(paddr base.PAddr, layout base.MapLayout) *KMap {
	return &KMap{base: paddr, layout: layout}
}

func (k *KMap) Layout() base.MapLayout { return k.layout }
func (k *KMap) Len() uintptr           { return k.layout.Len() }
func (k *KMap) Index(i uintptr) base.PAddr {
	return k.base.Add(i * k.layout.Align())
}

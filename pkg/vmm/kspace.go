package vmm

import (
	"sync"

	"github.com/nekos-kernel/nekos/config"
)

// KSpace is the single kernel half shared by every process: one Area per
// top-level kernel segment, all backed by GlobalPaging so a mapping
// installed through any process's root is visible through every other
// root's copied upper-half entries. Grounded on original_source's
// kernel/src/proc/vmm/mod.rs KernelVmm, split per segment instead of one
// Area spanning the whole kernel half because the teacher's own kernel
// VA layout (text, heap, per-hart trap state) is itself non-contiguous.
type KSpace struct {
	Text   *Area
	Heap   *Area
	Global *Area
}

var (
	kspaceOnce sync.Once
	kspace     *KSpace
	kspaceErr  error
)

// InitKSpace builds the kernel address space once InitGlobalTable has
// run. Safe to call from multiple harts at boot; all but the first call
// observe the cached result.
func InitKSpace() (*KSpace, error) {
	kspaceOnce.Do(func() {
		paging := GlobalPaging()
		text, err := NewArea(config.KernelTextSegment, paging)
		if err != nil {
			kspaceErr = err
			return
		}
		heap, err := NewArea(config.KernelHeapSegment, paging)
		if err != nil {
			kspaceErr = err
			return
		}
		global, err := NewArea(config.GlobalCapSegment, paging)
		if err != nil {
			kspaceErr = err
			return
		}
		kspace = &KSpace{Text: text, Heap: heap, Global: global}
	})
	return kspace, kspaceErr
}

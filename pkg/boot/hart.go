package boot

import (
	"github.com/nekos-kernel/nekos/pkg/trap"
	"github.com/nekos-kernel/nekos/pkg/vmm"
)

// idleHart is the Hart this module hands every thread it spawns. There
// is no RISC-V interpreter anywhere in this port — the kernel's own
// logic is what is under implementation here, not a CPU simulator — so
// RunUser always reports the thread yielded rather than actually
// executing user code. A real deployment replaces this with whatever
// the platform's privileged-mode trampoline backs trap.Hart with.
type idleHart struct{}

func (idleHart) RunUser(ctx *trap.Context, token vmm.PagingToken) trap.Trap {
	return trap.Trap{Kind: trap.KindSoftwareInterrupt}
}

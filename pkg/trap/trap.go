package trap

import "github.com/nekos-kernel/nekos/pkg/vmm"

// Access names the kind of memory access that produced a fault.
type Access uint8

const (
	AccessRead Access = iota
	AccessWrite
	AccessExecute
)

// Kind discriminates the decoded Trap variants of spec.md §4.7:
// `{Unknown, Exception(...), Interrupt(...)}`.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindIllegalInstruction
	KindMisaligned
	KindPageFault
	KindSyscall
	KindBreakpoint
	KindTimer
	KindSoftwareInterrupt
	KindHardwareInterrupt
)

// Trap is the decoded result of a trap switch. Only the fields relevant
// to Kind are meaningful; this flattens the original's nested
// Exception/Interrupt enum into one struct with a discriminant, since Go
// has no sum types and an interface per variant would cost more than it
// buys here.
type Trap struct {
	Kind        Kind
	Access      Access   // KindMisaligned, KindPageFault
	Addr        uintptr  // KindMisaligned, KindPageFault
	SyscallID   uint64   // KindSyscall
	SyscallArgs [6]uint64 // KindSyscall
	Vector      uint64   // KindSoftwareInterrupt, KindHardwareInterrupt
}

func (t Trap) IsException() bool {
	switch t.Kind {
	case KindIllegalInstruction, KindMisaligned, KindPageFault, KindSyscall, KindBreakpoint:
		return true
	default:
		return false
	}
}

func (t Trap) IsInterrupt() bool {
	switch t.Kind {
	case KindTimer, KindSoftwareInterrupt, KindHardwareInterrupt:
		return true
	default:
		return false
	}
}

// Frame is the per-hart trap frame: a page-sized structure holding the
// saved user context plus fault-path bookkeeping. One exists per hart
// and, on real hardware, is mapped once into the global kernel region at
// config.TrapFrameVAddr. Grounded on platform/riscv64/trap.rs's
// TrapFrame; the raw assembly register stashes (fault_gp/fault_tp/
// fault_sp/switch_sp/switch_satp) that only exist to support the
// trampoline's hand-written asm switch are dropped — there is no
// trampoline asm in a hosted build, only the Hart contract below.
type Frame struct {
	Ctx            Context
	Status         uint64
	FaultCounter   uint64
	FaultHandlerPC uintptr
}

// Hart is the per-core execution collaborator. The kernel proper never
// runs user-mode instructions itself; it builds a Context, hands it (via
// the trap frame) to a Hart, and decodes whatever Trap comes back. A
// real platform layer backs this with actual privileged-mode execution;
// tests and the hosted simulation back it with a scripted stand-in.
type Hart interface {
	RunUser(ctx *Context, token vmm.PagingToken) Trap
}

// Switch performs the kernel-visible switch(ctx, paging) operation of
// spec.md §4.7: it copies ctx into frame, asks hart to run it, and
// copies the updated user state back into ctx before returning hart's
// decoded Trap.
func Switch(hart Hart, frame *Frame, ctx *Context, token vmm.PagingToken) Trap {
	frame.Ctx = *ctx
	result := hart.RunUser(&frame.Ctx, token)
	*ctx = frame.Ctx
	return result
}

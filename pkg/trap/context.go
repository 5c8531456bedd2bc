// Package trap models the architecture-neutral side of the trampoline
// described in spec.md §4.7: the user register context, the per-hart
// trap frame it is staged through, and the decoded Trap a switch
// produces. Grounded on original_source's rt/trap.rs (the TrapContext
// trait and User wrapper) and platform/riscv64/trap.rs (RawTrapContext,
// TrapFrame), with the hand-written assembly switch path replaced by the
// Hart collaborator contract: this package never executes user code
// itself, it only builds a Context and asks a Hart to run it.
package trap

import "github.com/nekos-kernel/nekos/config"

// Context is the full user-mode register file a trap switch saves and
// restores: integer and floating-point registers plus the two
// supervisor control registers every RISC-V trap touches. Grounded on
// platform/riscv64/trap.rs's RawTrapContext.
type Context struct {
	Regs    [32]uint64
	FRegs   [32]uint64
	SStatus uint64
	SEPC    uint64
}

// userSStatus is the sstatus bit pattern SetUser installs: SPP clear
// (return to user mode), FS (bits 13-14) set to Dirty so the
// floating-point registers are live, and SD (bit 63) set to match.
// SPIE and SUM are left clear.
const userSStatus = 0x8000000000006000

// NewContext returns a zeroed context, ready for SetUser/SetPC/etc.
func NewContext() Context { return Context{} }

// SetUser marks the context as returning to user mode.
func (c *Context) SetUser() { c.SStatus = userSStatus }

// SetPC sets the program counter the switch resumes at.
func (c *Context) SetPC(pc uintptr) { c.SEPC = uint64(pc) }

// SetSP sets the user stack pointer (register x2).
func (c *Context) SetSP(sp uintptr) { c.Regs[2] = uint64(sp) }

// SetTP sets the user thread pointer (register x4).
func (c *Context) SetTP(tp uintptr) { c.Regs[4] = uint64(tp) }

// SetOpaque sets the first argument register (x10/a0), used to hand a
// freshly created thread its opaque start argument.
func (c *Context) SetOpaque(v uint64) { c.Regs[10] = v }

// SolveBreakpoint advances past a breakpoint instruction by 2 bytes, the
// length of the compressed c.ebreak encoding, so resuming the context
// does not retrap on the same instruction.
func (c *Context) SolveBreakpoint() { c.SEPC += 2 }

// SolveSyscall writes a syscall's result back using the two-register
// convention "a0 = error code (0 on success), a1 = value" and advances
// past the four-byte ecall instruction.
func (c *Context) SolveSyscall(errno config.Errno, value uint64) {
	c.Regs[10] = uint64(errno)
	c.Regs[11] = value
	c.SEPC += 4
}

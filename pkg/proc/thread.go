package proc

import (
	"context"
	"sync/atomic"

	"github.com/nekos-kernel/nekos/config"
	"github.com/nekos-kernel/nekos/pkg/base"
	"github.com/nekos-kernel/nekos/pkg/sched"
	"github.com/nekos-kernel/nekos/pkg/trap"
)

// ThreadDeathKind discriminates a thread's two dead states.
type ThreadDeathKind uint8

const (
	ThreadDeadExited ThreadDeathKind = iota
	ThreadDeadFaultProcessDead
)

// ThreadDeath records how and with what code a thread died.
type ThreadDeath struct {
	Kind ThreadDeathKind
	Code int64
}

// DispatchResult is a syscall handler's outcome translated for Thread's
// main loop: either a value/errno pair to write back via the trap-return
// convention, or a request that the thread terminate now (spec.md §7's
// "Killed" effect — e.g. debug_exit, or a signal drained mid-dispatch).
type DispatchResult struct {
	Value uint64
	Errno config.Errno
	Exit  *int64
}

// Dispatcher runs one syscall to completion. Kept as an interface
// (rather than an import of pkg/syscall) so pkg/syscall can depend on
// pkg/proc without a cycle.
type Dispatcher interface {
	Dispatch(thread *Thread, id uint64, args [6]uint64) DispatchResult
}

// Thread is one schedulable unit of user execution: a register context
// switched through a Hart, a signal queue, and a back-reference to its
// owning Process. Grounded on original_source's kernel/src/proc/thread.rs
// (Thread's fields) and kernel/src/rt/trap.rs's per-thread User context;
// the original's async Future/Environment plumbing is replaced by
// implementing sched.Task directly — Resume is this thread's one
// "poll".
type Thread struct {
	dead     atomic.Bool
	death    atomic.Pointer[ThreadDeath]
	Signals  *SignalSet
	Process  *Process
	priority uint64

	hart     trap.Hart
	dispatch Dispatcher
	frame    *trap.Frame
	userCtx  trap.Context
}

// NewThread builds a thread ready to run at pc with stack pointer sp and
// thread pointer tp, carrying opaque as its first argument register
// (spec.md §4.10, mirroring original_source's Thread::create).
func NewThread(process *Process, hart trap.Hart, dispatch Dispatcher, frame *trap.Frame, pc, sp, tp base.VAddr, opaque uint64, priority uint64) *Thread {
	ctx := trap.NewContext()
	ctx.SetUser()
	ctx.SetPC(uintptr(pc))
	ctx.SetSP(uintptr(sp))
	ctx.SetTP(uintptr(tp))
	ctx.SetOpaque(opaque)
	if priority == 0 {
		priority = config.PriorityDefault
	}
	return &Thread{
		Signals:  NewSignalSet(),
		Process:  process,
		priority: priority,
		hart:     hart,
		dispatch: dispatch,
		frame:    frame,
		userCtx:  ctx,
	}
}

// Priority implements sched.Task.
func (t *Thread) Priority() uint64 { return t.priority }

// Hart returns the execution collaborator this thread runs on. Exposed
// for syscalls that spawn new threads or processes (thread_create,
// process_create): in this module's one-hart-per-thread model there is
// no other hart reference available to hand the new thread, so it
// inherits the creating thread's own.
func (t *Thread) Hart() trap.Hart { return t.hart }

// IsDead reports whether the thread has terminated.
func (t *Thread) IsDead() bool { return t.dead.Load() }

// Death returns the thread's death record, if it has died.
func (t *Thread) Death() (ThreadDeath, bool) {
	d := t.death.Load()
	if d == nil {
		return ThreadDeath{}, false
	}
	return *d, true
}

// exit transitions the thread to dead exactly once (spec.md §4.10),
// unregistering it from its process's thread set.
func (t *Thread) exit(kind ThreadDeathKind, code int64) {
	if !t.dead.CompareAndSwap(false, true) {
		return
	}
	d := ThreadDeath{Kind: kind, Code: code}
	t.death.Store(&d)
	t.Process.Threads.Remove(t)
}

// Kill requests the thread terminate with the given exit code, the
// syscall-visible thread_kill path (spec.md §4.11).
func (t *Thread) Kill(code int64) {
	t.Signals.Send(Signal{Kind: SignalKillThread, Code: code})
}

// drainSignals processes every currently queued signal, spec.md §4.10:
// KillThread -> thread_exit, StopProcess -> thread_fault(ProcessDead).
func (t *Thread) drainSignals() {
	for {
		sig, ok := t.Signals.Receive()
		if !ok {
			return
		}
		switch sig.Kind {
		case SignalKillThread:
			t.exit(ThreadDeadExited, sig.Code)
		case SignalStopProcess:
			t.exit(ThreadDeadFaultProcessDead, 0)
		}
	}
}

// Resume implements sched.Task: drain signals, run one trap switch, act
// on the decoded Trap, drain signals again, and report whether the
// thread is still runnable.
func (t *Thread) Resume(ctx context.Context, waker sched.Waker) sched.Outcome {
	t.drainSignals()
	if t.dead.Load() {
		return sched.OutcomeDone
	}

	tr := trap.Switch(t.hart, t.frame, &t.userCtx, t.Process.Space.Token())
	switch tr.Kind {
	case trap.KindSyscall:
		result := t.dispatch.Dispatch(t, tr.SyscallID, tr.SyscallArgs)
		if result.Exit != nil {
			t.exit(ThreadDeadExited, *result.Exit)
		} else {
			t.userCtx.SolveSyscall(result.Errno, result.Value)
		}
	case trap.KindBreakpoint:
		t.userCtx.SolveBreakpoint()
	case trap.KindSoftwareInterrupt:
		// drained below; nothing else to decode for this trap.
	case trap.KindIllegalInstruction, trap.KindMisaligned, trap.KindPageFault:
		t.Process.Fault(tr)
	}

	t.drainSignals()
	if t.dead.Load() {
		return sched.OutcomeDone
	}
	return sched.OutcomeYield
}

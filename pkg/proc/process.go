package proc

import (
	"sync/atomic"

	"github.com/nekos-kernel/nekos/config"
	"github.com/nekos-kernel/nekos/pkg/base"
	"github.com/nekos-kernel/nekos/pkg/loader"
	"github.com/nekos-kernel/nekos/pkg/memfs"
	"github.com/nekos-kernel/nekos/pkg/objects"
	"github.com/nekos-kernel/nekos/pkg/trap"
	"github.com/nekos-kernel/nekos/pkg/vmm"
)

// ProcessDeathKind discriminates why a process stopped.
type ProcessDeathKind uint8

const (
	ProcessExited ProcessDeathKind = iota
	ProcessFault
)

// ProcessDeath records how a process died. Fault is only meaningful when
// Kind is ProcessFault, carrying the trap that killed the thread which
// took the whole process down with it (spec.md §4.10: a fault in any
// thread stops the process).
type ProcessDeath struct {
	Kind  ProcessDeathKind
	Code  int64
	Fault trap.Trap
}

// Process owns a user address space, a capability table and the set of
// threads running inside it. Grounded on original_source's
// kernel/src/proc/process.rs; the original's `Mutex<ProcessStatus>`
// enum is replaced by an atomic dead flag plus a death record, matching
// the CAS-based exactly-once transition already used by Thread.
type Process struct {
	dead  atomic.Bool
	death atomic.Pointer[ProcessDeath]

	Space   *vmm.UserSpace
	Handles *HandleSet
	Threads *ThreadSet
	TLS     *loader.TLSTemplate
}

// NewProcess builds a process over the given user address space,
// installing the well-known self-handle at config.ProcessSelfHandle
// (spec.md §4.9). tls is copied into every thread Spawn creates
// afterward, mirroring the original's per-process `load_tls` template.
func NewProcess(space *vmm.UserSpace, tls *loader.TLSTemplate) *Process {
	p := &Process{
		Space:   space,
		Handles: NewHandleSet(config.ReservedHandles),
		Threads: NewThreadSet(),
		TLS:     tls,
	}
	_ = p.Handles.Extend(HandleID(config.ProcessSelfHandle), p)
	return p
}

// Create loads name from fs, builds a fresh process around the
// resulting image, and spawns its first thread at the image's entry
// point — the syscall-visible process_create path (spec.md §4.11) and
// the boot sequence's construction of the init process, grounded on
// original_source's Process::create.
func Create(fs memfs.FS, name string, hart trap.Hart, dispatch Dispatcher, frame *trap.Frame) (*Process, error) {
	image, err := loader.Load(fs, name)
	if err != nil {
		return nil, err
	}
	p := NewProcess(image.Space, image.TLS)
	if _, err := p.Spawn(hart, dispatch, frame, image.Entry, 0); err != nil {
		return nil, err
	}
	return p, nil
}

// IsDead reports whether the process has stopped.
func (p *Process) IsDead() bool { return p.dead.Load() }

// Death returns the process's death record, if it has stopped.
func (p *Process) Death() (ProcessDeath, bool) {
	d := p.death.Load()
	if d == nil {
		return ProcessDeath{}, false
	}
	return *d, true
}

// Alive reports whether this process is eligible to keep a scheduler
// run loop alive: not dead, and still has at least one thread to make
// progress on. Used as the scheduler's InitCheck for the init process.
func (p *Process) Alive() bool {
	return !p.dead.Load() && p.Threads.Len() > 0
}

// Stop transitions the process to dead exactly once, broadcasting
// SignalStopProcess to every thread so each unwinds through its own
// drainSignals on its next Resume.
func (p *Process) Stop(death ProcessDeath) bool {
	if !p.dead.CompareAndSwap(false, true) {
		return false
	}
	p.death.Store(&death)
	p.Threads.Broadcast(Signal{Kind: SignalStopProcess})
	return true
}

// Exit stops the process with an ordinary exit code (process_kill,
// spec.md §4.11). A thread exiting never calls it, not even the last
// one; a process with no threads left is reported by Alive instead.
func (p *Process) Exit(code int64) bool {
	return p.Stop(ProcessDeath{Kind: ProcessExited, Code: code})
}

// Fault stops the process because one of its threads took an
// unrecoverable trap.
func (p *Process) Fault(tr trap.Trap) bool {
	return p.Stop(ProcessDeath{Kind: ProcessFault, Fault: tr})
}

// Spawn builds a new thread starting at pc: allocates and maps a user
// stack (and, if this process has a TLS template, a fresh copy of it)
// in the process's address space, then registers the thread with the
// thread set. Fails if the process has already stopped. Grounded on
// original_source's Thread::create, which performs this same
// stack/TLS setup rather than taking sp/tp from its caller.
func (p *Process) Spawn(hart trap.Hart, dispatch Dispatcher, frame *trap.Frame, pc base.VAddr, opaque uint64) (*Thread, error) {
	if p.dead.Load() {
		return nil, ErrBadStatus
	}

	stackMem, err := objects.Create(config.ThreadStackLayout)
	if err != nil {
		return nil, err
	}
	stackBot, err := p.Space.Root().FindMap(stackMem, base.PermRW)
	if err != nil {
		return nil, err
	}
	sp := stackBot + base.VAddr(stackMem.Layout().Size()) - base.VAddr(config.StackOffset)

	var tp base.VAddr
	if p.TLS != nil {
		tlsMem, err := objects.Create(p.TLS.Layout)
		if err != nil {
			return nil, err
		}
		if err := tlsMem.Write(0, p.TLS.Content); err != nil {
			return nil, err
		}
		tp, err = p.Space.Root().FindMap(tlsMem, base.PermRW)
		if err != nil {
			return nil, err
		}
	}

	t := NewThread(p, hart, dispatch, frame, pc, sp, tp, opaque, config.PriorityDefault)
	p.Threads.Insert(t)
	return t, nil
}

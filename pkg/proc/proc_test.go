package proc

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekos-kernel/nekos/config"
	"github.com/nekos-kernel/nekos/pkg/base"
	"github.com/nekos-kernel/nekos/pkg/mem/frames"
	"github.com/nekos-kernel/nekos/pkg/sched"
	"github.com/nekos-kernel/nekos/pkg/trap"
	"github.com/nekos-kernel/nekos/pkg/vmm"
)

var testInitOnce sync.Once

// testSetup installs a backing frame allocator and the shared kernel
// table exactly once for the whole package (both are base.Singleton
// backed and panic on a second Initialize).
func testSetup(t *testing.T) {
	t.Helper()
	testInitOnce.Do(func() {
		seg, ok := base.ByPoints(base.PAddr(0), base.PAddr(256*1024*1024))
		require.True(t, ok)
		buf := make([]byte, 128*1024)
		require.NoError(t, frames.Init(seg, 4096, buf))
		require.NoError(t, vmm.InitGlobalTable())
	})
}

func TestHandleSetExtendFailsIfTaken(t *testing.T) {
	hs := NewHandleSet(config.ReservedHandles)
	require.NoError(t, hs.Extend(0, "self"))
	require.ErrorIs(t, hs.Extend(0, "other"), ErrHandleTaken)
}

func TestHandleSetPushMonotonicallyAboveReservedWindow(t *testing.T) {
	hs := NewHandleSet(config.ReservedHandles)
	require.NoError(t, hs.Extend(0, "self"))
	first := hs.Push("a")
	second := hs.Push("b")
	require.GreaterOrEqual(t, uint64(first), config.ReservedHandles)
	require.Equal(t, first+1, second)

	obj, ok := hs.Lookup(first)
	require.True(t, ok)
	require.Equal(t, "a", obj)

	removed, ok := hs.Remove(first)
	require.True(t, ok)
	require.Equal(t, "a", removed)
	_, ok = hs.Lookup(first)
	require.False(t, ok)
}

func TestSignalSetIsFIFO(t *testing.T) {
	ss := NewSignalSet()
	ss.Send(Signal{Kind: SignalKillThread, Code: 1})
	ss.Send(Signal{Kind: SignalStopProcess})

	first, ok := ss.Receive()
	require.True(t, ok)
	require.Equal(t, SignalKillThread, first.Kind)

	second, ok := ss.Receive()
	require.True(t, ok)
	require.Equal(t, SignalStopProcess, second.Kind)

	_, ok = ss.Receive()
	require.False(t, ok)
}

func TestThreadSetBroadcastReachesEveryThread(t *testing.T) {
	testSetup(t)
	space, err := vmm.NewUserSpace()
	require.NoError(t, err)
	p := NewProcess(space, nil)

	th1, err := p.Spawn(&scriptedHart{}, &scriptedDispatcher{}, &trap.Frame{}, 0x1000, 0)
	require.NoError(t, err)
	th2, err := p.Spawn(&scriptedHart{}, &scriptedDispatcher{}, &trap.Frame{}, 0x1000, 0)
	require.NoError(t, err)
	require.Equal(t, 2, p.Threads.Len())

	p.Threads.Broadcast(Signal{Kind: SignalKillThread})
	sig1, ok := th1.Signals.Receive()
	require.True(t, ok)
	require.Equal(t, SignalKillThread, sig1.Kind)
	sig2, ok := th2.Signals.Receive()
	require.True(t, ok)
	require.Equal(t, SignalKillThread, sig2.Kind)
}

// scriptedHart always reports the next trap in its queue, defaulting to
// a software interrupt (an empty Resume tick) once exhausted.
type scriptedHart struct {
	traps []trap.Trap
}

func (h *scriptedHart) RunUser(ctx *trap.Context, token vmm.PagingToken) trap.Trap {
	if len(h.traps) == 0 {
		return trap.Trap{Kind: trap.KindSoftwareInterrupt}
	}
	tr := h.traps[0]
	h.traps = h.traps[1:]
	return tr
}

// scriptedDispatcher answers every syscall with a fixed DispatchResult.
type scriptedDispatcher struct {
	result DispatchResult
}

func (d *scriptedDispatcher) Dispatch(thread *Thread, id uint64, args [6]uint64) DispatchResult {
	return d.result
}

func TestThreadResumeExitsOnDebugExitSyscall(t *testing.T) {
	testSetup(t)
	space, err := vmm.NewUserSpace()
	require.NoError(t, err)
	p := NewProcess(space, nil)

	hart := &scriptedHart{traps: []trap.Trap{{Kind: trap.KindSyscall, SyscallID: uint64(config.SyscallDebugExit)}}}
	code := int64(7)
	dispatch := &scriptedDispatcher{result: DispatchResult{Exit: &code}}
	th, err := p.Spawn(hart, dispatch, &trap.Frame{}, 0x1000, 0)
	require.NoError(t, err)

	outcome := th.Resume(context.Background(), func() {})
	require.Equal(t, sched.OutcomeDone, outcome)
	require.True(t, th.IsDead())
	death, ok := th.Death()
	require.True(t, ok)
	require.Equal(t, ThreadDeadExited, death.Kind)
	require.Equal(t, int64(7), death.Code)
	require.Equal(t, 0, p.Threads.Len())
}

func TestProcessFaultStopsSiblingThreads(t *testing.T) {
	testSetup(t)
	space, err := vmm.NewUserSpace()
	require.NoError(t, err)
	p := NewProcess(space, nil)

	faultingHart := &scriptedHart{traps: []trap.Trap{{Kind: trap.KindPageFault, Addr: 0xdead}}}
	sibling, err := p.Spawn(&scriptedHart{}, &scriptedDispatcher{}, &trap.Frame{}, 0x1000, 0)
	require.NoError(t, err)
	faulter, err := p.Spawn(faultingHart, &scriptedDispatcher{}, &trap.Frame{}, 0x1000, 0)
	require.NoError(t, err)

	_ = faulter.Resume(context.Background(), func() {})
	require.True(t, p.IsDead())
	death, ok := p.Death()
	require.True(t, ok)
	require.Equal(t, ProcessFault, death.Kind)

	outcome := sibling.Resume(context.Background(), func() {})
	require.Equal(t, sched.OutcomeDone, outcome)
	require.True(t, sibling.IsDead())
}

func TestProcessAliveReflectsThreadCount(t *testing.T) {
	testSetup(t)
	space, err := vmm.NewUserSpace()
	require.NoError(t, err)
	p := NewProcess(space, nil)
	require.False(t, p.Alive())

	_, err = p.Spawn(&scriptedHart{}, &scriptedDispatcher{}, &trap.Frame{}, 0x1000, 0)
	require.NoError(t, err)
	require.True(t, p.Alive())

	require.True(t, p.Exit(0))
	require.False(t, p.Alive())

	_, err = p.Spawn(&scriptedHart{}, &scriptedDispatcher{}, &trap.Frame{}, 0x1000, 0)
	require.ErrorIs(t, err, ErrBadStatus)
}

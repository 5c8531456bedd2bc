package syscall

import (
	"bytes"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekos-kernel/nekos/config"
	"github.com/nekos-kernel/nekos/pkg/base"
	"github.com/nekos-kernel/nekos/pkg/mem/frames"
	"github.com/nekos-kernel/nekos/pkg/memfs"
	"github.com/nekos-kernel/nekos/pkg/objects"
	"github.com/nekos-kernel/nekos/pkg/proc"
	"github.com/nekos-kernel/nekos/pkg/trap"
	"github.com/nekos-kernel/nekos/pkg/vmm"
)

var testInitOnce sync.Once

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

func newTestThread(t *testing.T) *proc.Thread {
	t.Helper()
	testSetup(t)
	space, err := vmm.NewUserSpace()
	require.NoError(t, err)
	p := proc.NewProcess(space, nil)
	table := NewTable(memfs.New(nil))
	th, err := p.Spawn(&noopHart{}, table, &trap.Frame{}, 0x1000, 0)
	require.NoError(t, err)
	return th
}

type noopHart struct{}

func (h *noopHart) RunUser(ctx *trap.Context, token vmm.PagingToken) trap.Trap {
	return trap.Trap{Kind: trap.KindSoftwareInterrupt}
}

func TestDispatchUnknownSyscallIsInvalid(t *testing.T) {
	th := newTestThread(t)
	table := NewTable(memfs.New(nil))
	result := table.Dispatch(th, 0xdeadbeef, [6]uint64{})
	require.Equal(t, config.ErrInvalidSyscall, result.Errno)
}

func TestDebugWriteRoundTrips(t *testing.T) {
	th := newTestThread(t)
	table := NewTable(memfs.New(nil))

	mem, err := objects.Create(config.ThreadStackLayout)
	require.NoError(t, err)
	va, err := th.Process.Space.Root().FindMap(mem, base.PermRW)
	require.NoError(t, err)

	msg := []byte("hello kernel")
	require.NoError(t, th.Process.Space.Root().Write(va, msg))

	var out bytes.Buffer
	old := Stdout
	Stdout = &out
	defer func() { Stdout = old }()

	result := table.Dispatch(th, uint64(config.SyscallDebugWrite), [6]uint64{uint64(va), uint64(len(msg))})
	require.Equal(t, config.ErrnoOK, result.Errno)
	require.Equal(t, "hello kernel", out.String())
}

func TestDebugWriteRejectsInvalidUTF8(t *testing.T) {
	th := newTestThread(t)
	table := NewTable(memfs.New(nil))

	mem, err := objects.Create(config.ThreadStackLayout)
	require.NoError(t, err)
	va, err := th.Process.Space.Root().FindMap(mem, base.PermRW)
	require.NoError(t, err)
	require.NoError(t, th.Process.Space.Root().Write(va, []byte{0xff, 0xfe}))

	result := table.Dispatch(th, uint64(config.SyscallDebugWrite), [6]uint64{uint64(va), 2})
	require.Equal(t, config.ErrDebugWriteInvalidUTF8, result.Errno)
}

func TestDebugExitSetsDispatchResultExit(t *testing.T) {
	th := newTestThread(t)
	table := NewTable(memfs.New(nil))
	result := table.Dispatch(th, uint64(config.SyscallDebugExit), [6]uint64{42})
	require.NotNil(t, result.Exit)
	require.Equal(t, int64(42), *result.Exit)
}

func TestHandleDropRoundTrip(t *testing.T) {
	th := newTestThread(t)
	table := NewTable(memfs.New(nil))

	mem, err := objects.Create(config.ThreadStackLayout)
	require.NoError(t, err)
	id := th.Process.Handles.Push(mem)

	result := table.Dispatch(th, uint64(config.SyscallHandleDrop), [6]uint64{uint64(id)})
	require.Equal(t, config.ErrnoOK, result.Errno)

	result = table.Dispatch(th, uint64(config.SyscallHandleDrop), [6]uint64{uint64(id)})
	require.Equal(t, config.ErrHandleDropNotFound, result.Errno)
}

func TestMemoryCreateThenAreaFindMap(t *testing.T) {
	th := newTestThread(t)
	table := NewTable(memfs.New(nil))

	memResult := table.Dispatch(th, uint64(config.SyscallMemoryCreate), [6]uint64{4096, 4096})
	require.Equal(t, config.ErrnoOK, memResult.Errno)

	rootID := th.Process.Handles.Push(th.Process.Space.Root())
	mapResult := table.Dispatch(th, uint64(config.SyscallAreaFindMap), [6]uint64{
		uint64(rootID), memResult.Value, uint64(base.PermRW.AsBits()),
	})
	require.Equal(t, config.ErrnoOK, mapResult.Errno)
	require.NotZero(t, mapResult.Value)
}

func TestAreaMapRejectsBadHandle(t *testing.T) {
	th := newTestThread(t)
	table := NewTable(memfs.New(nil))
	result := table.Dispatch(th, uint64(config.SyscallAreaMap), [6]uint64{999, 999, 0x2000, uint64(base.PermRW.AsBits())})
	require.Equal(t, config.ErrAreaMapBadHandle, result.Errno)
}

func TestChannelCreateSendReceiveBytes(t *testing.T) {
	th := newTestThread(t)
	table := NewTable(memfs.New(nil))

	mem, err := objects.Create(config.ThreadStackLayout)
	require.NoError(t, err)
	retVA, err := th.Process.Space.Root().FindMap(mem, base.PermRW)
	require.NoError(t, err)

	createResult := table.Dispatch(th, uint64(config.SyscallChannelCreate), [6]uint64{uint64(retVA)})
	require.Equal(t, config.ErrnoOK, createResult.Errno)

	var raw [16]byte
	require.NoError(t, th.Process.Space.Root().Read(retVA, raw[:]))
	lID := binary.LittleEndian.Uint64(raw[0:8])
	rID := binary.LittleEndian.Uint64(raw[8:16])

	payload := []byte("ping")
	payloadVA, err := th.Process.Space.Root().FindMap(mustCreate(t), base.PermRW)
	require.NoError(t, err)
	require.NoError(t, th.Process.Space.Root().Write(payloadVA, payload))

	sendResult := table.Dispatch(th, uint64(config.SyscallChannelSendBytes), [6]uint64{lID, uint64(payloadVA), uint64(len(payload))})
	require.Equal(t, config.ErrnoOK, sendResult.Errno)

	retLenMem := mustCreate(t)
	retLenVA, err := th.Process.Space.Root().FindMap(retLenMem, base.PermRW)
	require.NoError(t, err)
	recvBufMem := mustCreate(t)
	recvBufVA, err := th.Process.Space.Root().FindMap(recvBufMem, base.PermRW)
	require.NoError(t, err)

	recvResult := table.Dispatch(th, uint64(config.SyscallChannelReceive), [6]uint64{rID, uint64(recvBufVA), 4096, uint64(retLenVA)})
	require.Equal(t, config.ErrnoOK, recvResult.Errno)
	require.Equal(t, uint64(0), recvResult.Value)

	var gotLen [8]byte
	require.NoError(t, th.Process.Space.Root().Read(retLenVA, gotLen[:]))
	require.Equal(t, uint64(len(payload)), binary.LittleEndian.Uint64(gotLen[:]))

	got := make([]byte, len(payload))
	require.NoError(t, th.Process.Space.Root().Read(recvBufVA, got))
	require.Equal(t, payload, got)
}

func TestChannelReceiveEmptyIsAnErrno(t *testing.T) {
	th := newTestThread(t)
	table := NewTable(memfs.New(nil))

	mem := mustCreate(t)
	va, err := th.Process.Space.Root().FindMap(mem, base.PermRW)
	require.NoError(t, err)
	createResult := table.Dispatch(th, uint64(config.SyscallChannelCreate), [6]uint64{uint64(va)})
	require.Equal(t, config.ErrnoOK, createResult.Errno)

	var raw [16]byte
	require.NoError(t, th.Process.Space.Root().Read(va, raw[:]))
	lID := binary.LittleEndian.Uint64(raw[0:8])

	retLenMem := mustCreate(t)
	retLenVA, err := th.Process.Space.Root().FindMap(retLenMem, base.PermRW)
	require.NoError(t, err)

	result := table.Dispatch(th, uint64(config.SyscallChannelReceive), [6]uint64{lID, uint64(va), 4096, uint64(retLenVA)})
	require.Equal(t, config.ErrChannelReceiveEmpty, result.Errno)
}

func mustCreate(t *testing.T) *objects.Memory {
	t.Helper()
	mem, err := objects.Create(config.ThreadStackLayout)
	require.NoError(t, err)
	return mem
}

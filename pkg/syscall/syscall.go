// Package syscall is the kernel's syscall dispatch table: one handler
// per id in config's SyscallCode enum, each decoding its typed
// arguments out of the raw six-register ABI and acting on the calling
// thread's process. Grounded on original_source's
// kernel/src/user/syscalls tree, where each syscall is its own
// Syscalls<CODE> impl; this collapses that generated-trait-per-syscall
// shape into a plain map of functions, since Go has no const generics
// to key an impl table on.
package syscall

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"unicode/utf8"

	"github.com/nekos-kernel/nekos/config"
	"github.com/nekos-kernel/nekos/pkg/base"
	"github.com/nekos-kernel/nekos/pkg/loader"
	"github.com/nekos-kernel/nekos/pkg/memfs"
	"github.com/nekos-kernel/nekos/pkg/objects"
	"github.com/nekos-kernel/nekos/pkg/proc"
	"github.com/nekos-kernel/nekos/pkg/trap"
	"github.com/nekos-kernel/nekos/pkg/vmm"
)

// Stdout is where debug_write sends validated UTF-8. A package variable
// rather than a Table field so tests can swap it without threading a
// writer through every handler signature; production wiring never
// touches it.
var Stdout io.Writer = os.Stdout

// Table dispatches every syscall id to its handler, implementing
// proc.Dispatcher. It holds the one piece of state no handler can reach
// through the calling thread: the image filesystem process_create
// loads from.
type Table struct {
	fs memfs.FS
}

// NewTable builds a dispatch table backed by fs for process_create.
func NewTable(fs memfs.FS) *Table {
	return &Table{fs: fs}
}

type handlerFunc func(t *Table, thread *proc.Thread, args [6]uint64) proc.DispatchResult

var handlers = map[config.SyscallCode]handlerFunc{
	config.SyscallDebugWrite:        handleDebugWrite,
	config.SyscallDebugExit:         handleDebugExit,
	config.SyscallDebugYield:        handleDebugYield,
	config.SyscallHandleDrop:        handleHandleDrop,
	config.SyscallProcessCreate:     handleProcessCreate,
	config.SyscallProcessKill:       handleProcessKill,
	config.SyscallThreadCreate:      handleThreadCreate,
	config.SyscallThreadKill:        handleThreadKill,
	config.SyscallAreaCreate:        handleAreaCreate,
	config.SyscallAreaFindCreate:    handleAreaFindCreate,
	config.SyscallAreaMap:           handleAreaMap,
	config.SyscallAreaFindMap:       handleAreaFindMap,
	config.SyscallAreaUnmap:         handleAreaUnmap,
	config.SyscallMemoryCreate:      handleMemoryCreate,
	config.SyscallChannelCreate:     handleChannelCreate,
	config.SyscallChannelSendBytes:  handleChannelSendBytes,
	config.SyscallChannelSendHandle: handleChannelSendHandle,
	config.SyscallChannelReceive:    handleChannelReceive,
}

// Dispatch implements proc.Dispatcher. An id outside the table answers
// ErrInvalidSyscall, grounded on original_source's top-level
// handle_syscall match falling through to GeneralError::InvaildSyscall
// before any per-syscall Domain resolution is even attempted.
func (t *Table) Dispatch(thread *proc.Thread, id uint64, args [6]uint64) proc.DispatchResult {
	h, ok := handlers[config.SyscallCode(id)]
	if !ok {
		return errResult(config.ErrInvalidSyscall)
	}
	return h(t, thread, args)
}

func ok(value uint64) proc.DispatchResult {
	return proc.DispatchResult{Value: value}
}

func errResult(errno config.Errno) proc.DispatchResult {
	return proc.DispatchResult{Errno: errno}
}

// lookupHandle resolves id in thread's process handle table and
// type-asserts it to T, mirroring original_source's Domain impl for
// Handle<T> (lookup, then downcast; NotFound and BadType collapse to
// one failure here since every call site treats them identically).
func lookupHandle[T any](thread *proc.Thread, id uint64) (T, bool) {
	var zero T
	obj, ok := thread.Process.Handles.Lookup(proc.HandleID(id))
	if !ok {
		return zero, false
	}
	v, ok := obj.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

func readUserBytes(thread *proc.Thread, va base.VAddr, n uintptr) ([]byte, error) {
	buf := make([]byte, n)
	if err := thread.Process.Space.Root().Read(va, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeUserBytes(thread *proc.Thread, va base.VAddr, buf []byte) error {
	return thread.Process.Space.Root().Write(va, buf)
}

func writeUserUint64(thread *proc.Thread, va base.VAddr, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return writeUserBytes(thread, va, buf[:])
}

// handleDebugWrite validates buf_va[:len] as UTF-8 and prints it to the
// kernel's debug console (spec.md's debug_write, 0xFBDFBEC6).
func handleDebugWrite(_ *Table, thread *proc.Thread, args [6]uint64) proc.DispatchResult {
	buf, err := readUserBytes(thread, base.VAddr(args[0]), uintptr(args[1]))
	if err != nil {
		return errResult(config.ErrDebugWriteBadAddress)
	}
	if !utf8.Valid(buf) {
		return errResult(config.ErrDebugWriteInvalidUTF8)
	}
	_, _ = Stdout.Write(buf)
	return ok(0)
}

// handleDebugExit requests the calling thread terminate with code
// (0x5A76E1F5); the actual exit transition happens in Thread.Resume once
// it sees DispatchResult.Exit set.
func handleDebugExit(_ *Table, _ *proc.Thread, args [6]uint64) proc.DispatchResult {
	code := int64(args[0])
	return proc.DispatchResult{Exit: &code}
}

// handleDebugYield (0x40CAAC6B) is a pure cooperative yield point: the
// scheduler already reschedules after every Resume, so there is nothing
// further to do here beyond answering success.
func handleDebugYield(_ *Table, _ *proc.Thread, _ [6]uint64) proc.DispatchResult {
	return ok(0)
}

// handleHandleDrop (0x9C9113FA) removes id from the caller's handle
// table.
func handleHandleDrop(_ *Table, thread *proc.Thread, args [6]uint64) proc.DispatchResult {
	if _, removed := thread.Process.Handles.Remove(proc.HandleID(args[0])); !removed {
		return errResult(config.ErrHandleDropNotFound)
	}
	return ok(0)
}

// handleProcessCreate (0x635E36CE) loads name out of the image
// filesystem and spawns a fresh process around it, installing a handle
// to the new process in the caller's table. Grounded on
// original_source's Process::create plus loader::load; the new
// process's first thread inherits the caller's Hart, since this module
// binds a thread to one Hart for life (see pkg/proc's Thread.Hart doc).
func handleProcessCreate(t *Table, thread *proc.Thread, args [6]uint64) proc.DispatchResult {
	nameBytes, err := readUserBytes(thread, base.VAddr(args[0]), uintptr(args[1]))
	if err != nil {
		return errResult(config.ErrProcessCreateNotFound)
	}
	child, err := proc.Create(t.fs, string(nameBytes), thread.Hart(), t, &trap.Frame{})
	if err != nil {
		if errors.Is(err, loader.ErrNotFound) {
			return errResult(config.ErrProcessCreateNotFound)
		}
		return errResult(config.ErrProcessCreateBadImage)
	}
	id := thread.Process.Handles.Push(child)
	return ok(uint64(id))
}

// handleProcessKill (0x5050FE08) stops the referenced process with the
// given exit code.
func handleProcessKill(_ *Table, thread *proc.Thread, args [6]uint64) proc.DispatchResult {
	target, found := lookupHandle[*proc.Process](thread, args[0])
	if !found {
		return errResult(config.ErrProcessKillBadHandle)
	}
	target.Exit(int64(args[1]))
	return ok(0)
}

// handleThreadCreate (0x50995B56) spawns a new thread in the referenced
// process at pc, carrying opaque as its first argument, and installs a
// handle to it in the caller's table. Collapses original_source's
// three-way BadStatus/OutOfMemory/OutOfVirtualMemory split into two
// Errno values: BadHandle also covers a process that died between
// lookup and spawn, OutOfMemory also covers a failed stack placement.
func handleThreadCreate(t *Table, thread *proc.Thread, args [6]uint64) proc.DispatchResult {
	target, found := lookupHandle[*proc.Process](thread, args[0])
	if !found {
		return errResult(config.ErrThreadCreateBadHandle)
	}
	newThread, err := target.Spawn(thread.Hart(), t, &trap.Frame{}, base.VAddr(args[1]), args[2])
	if err != nil {
		if errors.Is(err, proc.ErrBadStatus) {
			return errResult(config.ErrThreadCreateBadHandle)
		}
		return errResult(config.ErrThreadCreateOutOfMemory)
	}
	id := thread.Process.Handles.Push(newThread)
	return ok(uint64(id))
}

// handleThreadKill (0xF7C12D13) sends the referenced thread a
// KillThread signal.
func handleThreadKill(_ *Table, thread *proc.Thread, args [6]uint64) proc.DispatchResult {
	target, found := lookupHandle[*proc.Thread](thread, args[0])
	if !found {
		return errResult(config.ErrThreadKillBadHandle)
	}
	target.Kill(int64(args[1]))
	return ok(0)
}

// handleAreaCreate (0x7D81755F) reserves [va, va+size) as a new child of
// the referenced area.
func handleAreaCreate(_ *Table, thread *proc.Thread, args [6]uint64) proc.DispatchResult {
	parent, found := lookupHandle[*vmm.Area](thread, args[0])
	if !found {
		return errResult(config.ErrAreaCreateBadHandle)
	}
	child, err := parent.Create(base.VAddr(args[1]), uintptr(args[2]))
	if err != nil {
		switch {
		case errors.Is(err, vmm.ErrZeroSize):
			return errResult(config.ErrAreaCreateZeroSize)
		case errors.Is(err, vmm.ErrOverlapping):
			return errResult(config.ErrAreaCreateOverlapping)
		default:
			return errResult(config.ErrAreaCreateOutOfRange)
		}
	}
	id := thread.Process.Handles.Push(child)
	return ok(uint64(id))
}

// handleAreaFindCreate (0x261FAEBC) places a new child area of the given
// size/align anywhere free under the referenced area.
func handleAreaFindCreate(_ *Table, thread *proc.Thread, args [6]uint64) proc.DispatchResult {
	parent, found := lookupHandle[*vmm.Area](thread, args[0])
	if !found {
		return errResult(config.ErrAreaFindCreateBadHandle)
	}
	layout, validLayout := base.NewMapLayout(uintptr(args[1]), uintptr(args[2]))
	if !validLayout {
		return errResult(config.ErrAreaFindCreateExhausted)
	}
	child, err := parent.FindCreate(layout)
	if err != nil {
		return errResult(config.ErrAreaFindCreateExhausted)
	}
	id := thread.Process.Handles.Push(child)
	return ok(uint64(id))
}

// handleAreaMap (0x4E552567) maps the referenced memory object into the
// referenced area at va with the given permission bits.
func handleAreaMap(_ *Table, thread *proc.Thread, args [6]uint64) proc.DispatchResult {
	area, found := lookupHandle[*vmm.Area](thread, args[0])
	if !found {
		return errResult(config.ErrAreaMapBadHandle)
	}
	mem, found := lookupHandle[*objects.Memory](thread, args[1])
	if !found {
		return errResult(config.ErrAreaMapBadHandle)
	}
	permission, validPerm := base.PermissionFromBits(uintptr(args[3]))
	if !validPerm {
		return errResult(config.ErrAreaMapPermissionNotSup)
	}
	if err := area.Map(base.VAddr(args[2]), mem, permission); err != nil {
		switch {
		case errors.Is(err, vmm.ErrBadAddress):
			return errResult(config.ErrAreaMapBadAddress)
		case errors.Is(err, vmm.ErrAlignNotSupported):
			return errResult(config.ErrAreaMapAlignNotSupported)
		case errors.Is(err, vmm.ErrPermissionNotSupported):
			return errResult(config.ErrAreaMapPermissionNotSup)
		default:
			return errResult(config.ErrAreaMapOverlapping)
		}
	}
	return ok(0)
}

// handleAreaFindMap (0x13F9D9E7) is area_map with the target address
// chosen by the area's own free-space search, returned to the caller.
func handleAreaFindMap(_ *Table, thread *proc.Thread, args [6]uint64) proc.DispatchResult {
	area, found := lookupHandle[*vmm.Area](thread, args[0])
	if !found {
		return errResult(config.ErrAreaFindMapBadHandle)
	}
	mem, found := lookupHandle[*objects.Memory](thread, args[1])
	if !found {
		return errResult(config.ErrAreaFindMapBadHandle)
	}
	permission, validPerm := base.PermissionFromBits(uintptr(args[2]))
	if !validPerm {
		return errResult(config.ErrAreaFindMapExhausted)
	}
	va, err := area.FindMap(mem, permission)
	if err != nil {
		return errResult(config.ErrAreaFindMapExhausted)
	}
	return ok(uint64(va))
}

// handleAreaUnmap (0xA9AD74FF) removes the leaf reserved at va in the
// referenced area.
func handleAreaUnmap(_ *Table, thread *proc.Thread, args [6]uint64) proc.DispatchResult {
	area, found := lookupHandle[*vmm.Area](thread, args[0])
	if !found {
		return errResult(config.ErrAreaUnmapBadHandle)
	}
	if err := area.Unmap(base.VAddr(args[1])); err != nil {
		if errors.Is(err, vmm.ErrUnmapAnArea) {
			return errResult(config.ErrAreaUnmapNotALeaf)
		}
		return errResult(config.ErrAreaUnmapBadAddress)
	}
	return ok(0)
}

// handleMemoryCreate (0x345FC9E5) allocates a fresh frame-backed Memory
// object of the given size/align.
func handleMemoryCreate(_ *Table, thread *proc.Thread, args [6]uint64) proc.DispatchResult {
	layout, validLayout := base.NewMapLayout(uintptr(args[0]), uintptr(args[1]))
	if !validLayout {
		return errResult(config.ErrMemoryCreateZeroSize)
	}
	mem, err := objects.Create(layout)
	if err != nil {
		if errors.Is(err, objects.ErrOutOfMemory) {
			return errResult(config.ErrMemoryCreateOutOfMemory)
		}
		return errResult(config.ErrMemoryCreateZeroSize)
	}
	id := thread.Process.Handles.Push(mem)
	return ok(uint64(id))
}

// channelCreateReturn is the two-handle-id pair written back to
// ret_va, mirroring original_source's repr(C) ChannelCreateReturn.
const channelCreateReturnSize = 16

// handleChannelCreate (0xE3F0302C) builds a connected channel pair and
// writes both handle ids (8 bytes each, little endian) to ret_va.
// Original_source declares no per-syscall Errno for this call; a
// failed write answers the shared ErrBadUserAddress.
func handleChannelCreate(_ *Table, thread *proc.Thread, args [6]uint64) proc.DispatchResult {
	l, r := objects.NewChannelPair()
	lID := thread.Process.Handles.Push(l)
	rID := thread.Process.Handles.Push(r)

	var buf [channelCreateReturnSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(lID))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(rID))
	if err := writeUserBytes(thread, base.VAddr(args[0]), buf[:]); err != nil {
		return errResult(config.ErrBadUserAddress)
	}
	return ok(0)
}

// handleChannelSendBytes (0x72A3D296) enqueues a byte message on the
// referenced channel's peer.
func handleChannelSendBytes(_ *Table, thread *proc.Thread, args [6]uint64) proc.DispatchResult {
	channel, found := lookupHandle[*objects.Channel](thread, args[0])
	if !found {
		return errResult(config.ErrChannelSendBadHandle)
	}
	buf, err := readUserBytes(thread, base.VAddr(args[1]), uintptr(args[2]))
	if err != nil {
		return errResult(config.ErrBadUserAddress)
	}
	if err := channel.Send(objects.ChannelMessage{Bytes: buf}); err != nil {
		return errResult(config.ErrChannelSendPeerDead)
	}
	return ok(0)
}

// handleChannelSendHandle (0x314AA333) enqueues a handle-transfer
// message: the referenced object is looked up (not removed — both ends
// retain a capability, matching original_source's lookup-only Handle
// domain resolution) and handed to the peer as an opaque value.
func handleChannelSendHandle(_ *Table, thread *proc.Thread, args [6]uint64) proc.DispatchResult {
	channel, found := lookupHandle[*objects.Channel](thread, args[0])
	if !found {
		return errResult(config.ErrChannelSendBadHandle)
	}
	obj, found := thread.Process.Handles.Lookup(proc.HandleID(args[1]))
	if !found {
		return errResult(config.ErrChannelSendBadHandle)
	}
	if err := channel.Send(objects.ChannelMessage{Object: obj, IsHandle: true}); err != nil {
		return errResult(config.ErrChannelSendPeerDead)
	}
	return ok(0)
}

// handleChannelReceive (0xECEDB83D) dequeues the next message on the
// referenced channel. The return value's low bit is the message-kind
// discriminant (0 = bytes, 1 = handle), matching original_source's
// Ok(0)/Ok(1) codomain; on success the message length is written to
// ret_len_va before the payload. Unlike the original, which silently truncates an
// oversize byte message to the caller's buffer, this build rejects it
// with ErrChannelReceiveTooSmall before writing anything — a supplement
// chosen because a silently short read is a worse failure mode for a
// capability-typed channel than an explicit retry-with-bigger-buffer.
func handleChannelReceive(_ *Table, thread *proc.Thread, args [6]uint64) proc.DispatchResult {
	channel, found := lookupHandle[*objects.Channel](thread, args[0])
	if !found {
		return errResult(config.ErrChannelReceiveBadHandle)
	}
	msg, err := channel.Receive()
	if err != nil {
		return errResult(config.ErrChannelReceiveEmpty)
	}

	va := base.VAddr(args[1])
	capacity := args[2]
	retLenVA := base.VAddr(args[3])

	if msg.IsHandle {
		id := thread.Process.Handles.Push(msg.Object)
		if err := writeUserUint64(thread, retLenVA, 8); err != nil {
			return errResult(config.ErrBadUserAddress)
		}
		if err := writeUserUint64(thread, va, uint64(id)); err != nil {
			return errResult(config.ErrBadUserAddress)
		}
		return ok(1)
	}

	if uint64(len(msg.Bytes)) > capacity {
		return errResult(config.ErrChannelReceiveTooSmall)
	}
	if err := writeUserUint64(thread, retLenVA, uint64(len(msg.Bytes))); err != nil {
		return errResult(config.ErrBadUserAddress)
	}
	if err := writeUserBytes(thread, va, msg.Bytes); err != nil {
		return errResult(config.ErrBadUserAddress)
	}
	return ok(0)
}

package config

// SyscallCode is the 32-bit wire identifier carried in a7 at syscall
// entry. Values are fixed by wire compatibility (spec.md §4.11) and must
// never be renumbered.
type SyscallCode uint32

const (
	SyscallDebugWrite        SyscallCode = 0xFBDFBEC6
	SyscallDebugExit         SyscallCode = 0x5A76E1F5
	SyscallDebugYield        SyscallCode = 0x40CAAC6B
	SyscallHandleDrop        SyscallCode = 0x9C9113FA
	SyscallProcessCreate     SyscallCode = 0x635E36CE
	SyscallProcessKill       SyscallCode = 0x5050FE08
	SyscallThreadCreate      SyscallCode = 0x50995B56
	SyscallThreadKill        SyscallCode = 0xF7C12D13
	SyscallAreaCreate        SyscallCode = 0x7D81755F
	SyscallAreaFindCreate    SyscallCode = 0x261FAEBC
	SyscallAreaMap           SyscallCode = 0x4E552567
	SyscallAreaFindMap       SyscallCode = 0x13F9D9E7
	SyscallAreaUnmap         SyscallCode = 0xA9AD74FF
	SyscallMemoryCreate      SyscallCode = 0x345FC9E5
	SyscallChannelCreate     SyscallCode = 0xE3F0302C
	SyscallChannelSendBytes  SyscallCode = 0x72A3D296
	SyscallChannelSendHandle SyscallCode = 0x314AA333
	SyscallChannelReceive    SyscallCode = 0xECEDB83D
)

// syscallNames backs SyscallCode.String, used by the logrus fields the
// dispatcher attaches to each request.
var syscallNames = map[SyscallCode]string{
	SyscallDebugWrite:        "debug_write",
	SyscallDebugExit:         "debug_exit",
	SyscallDebugYield:        "debug_yield",
	SyscallHandleDrop:        "handle_drop",
	SyscallProcessCreate:     "process_create",
	SyscallProcessKill:       "process_kill",
	SyscallThreadCreate:      "thread_create",
	SyscallThreadKill:        "thread_kill",
	SyscallAreaCreate:        "area_create",
	SyscallAreaFindCreate:    "area_find_create",
	SyscallAreaMap:           "area_map",
	SyscallAreaFindMap:       "area_find_map",
	SyscallAreaUnmap:         "area_unmap",
	SyscallMemoryCreate:      "memory_create",
	SyscallChannelCreate:     "channel_create",
	SyscallChannelSendBytes:  "channel_send_bytes",
	SyscallChannelSendHandle: "channel_send_handle",
	SyscallChannelReceive:    "channel_receive",
}

func (c SyscallCode) String() string {
	if n, ok := syscallNames[c]; ok {
		return n
	}
	return "unknown_syscall"
}

// Errno is a namespaced, non-zero 32-bit wire identifier for a syscall
// failure. Two syscalls never share a value (spec.md §7).
type Errno uint32

// A zero Errno never appears on the wire; it denotes "no error" in the
// trap-return convention (a0 == 0).
const ErrnoOK Errno = 0

const (
	ErrDebugWriteInvalidUTF8   Errno = 0x1a2b3c01
	ErrDebugWriteBadAddress    Errno = 0x1a2b3c02
	ErrHandleDropNotFound      Errno = 0x9c911301
	ErrProcessCreateNotFound   Errno = 0x635e3601
	ErrProcessCreateBadImage   Errno = 0x635e3602
	ErrProcessKillBadHandle    Errno = 0x50500e01
	ErrThreadCreateBadHandle   Errno = 0x50995b01
	ErrThreadCreateOutOfMemory Errno = 0x50995b02
	ErrThreadKillBadHandle     Errno = 0xf7c12d01
	ErrAreaCreateZeroSize      Errno = 0x7d817501
	ErrAreaCreateOutOfRange    Errno = 0x2f70ab08
	ErrAreaCreateOverlapping   Errno = 0x7d817503
	ErrAreaCreateBadHandle     Errno = 0x7d817504
	ErrAreaFindCreateExhausted Errno = 0x261fae01
	ErrAreaFindCreateBadHandle Errno = 0x261fae02
	ErrAreaMapBadAddress        Errno = 0x4e552501
	ErrAreaMapAlignNotSupported Errno = 0x4e552502
	ErrAreaMapPermissionNotSup  Errno = 0x4e552503
	ErrAreaMapOverlapping       Errno = 0x4e552504
	ErrAreaMapBadHandle         Errno = 0x4e552505
	ErrAreaFindMapExhausted    Errno = 0x13f9d901
	ErrAreaFindMapBadHandle    Errno = 0x13f9d902
	ErrAreaUnmapBadAddress     Errno = 0xa9ad7401
	ErrAreaUnmapNotALeaf       Errno = 0xa9ad7402
	ErrAreaUnmapBadHandle      Errno = 0xa9ad7403
	ErrMemoryCreateZeroSize    Errno = 0x345fc901
	ErrMemoryCreateOutOfMemory Errno = 0x345fc902
	ErrChannelSendBadHandle    Errno = 0x72a3d201
	ErrChannelSendPeerDead     Errno = 0x72a3d202
	ErrChannelReceiveEmpty     Errno = 0xecedb801
	ErrChannelReceiveTooSmall  Errno = 0xecedb802
	ErrChannelReceiveBadHandle Errno = 0xecedb803

	// ErrInvalidSyscall answers any a7 id outside the dispatch table, the
	// one namespace-free Errno (original_source's GeneralError::InvaildSyscall,
	// raised before any per-syscall Domain resolution is attempted).
	ErrInvalidSyscall Errno = 0xffffffff

	// ErrBadUserAddress answers a failed read or write against a
	// caller-supplied buffer address, for the syscalls whose original
	// only ever fails this access as a general side-effect error rather
	// than a named per-syscall Errno (channel_create, channel_send_bytes,
	// channel_receive's ret_len_va/buffer writes).
	ErrBadUserAddress Errno = 0xbadadd00
)

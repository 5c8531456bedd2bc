// Package objects implements the capability-bearing values a process's
// handle table can hold: Memory (a plain frame-backed Area leaf),
// Channel (a paired, cyclically-referencing message queue), and KMap (a
// kernel-owned, pre-existing physical range installed as a global leaf,
// e.g. the trampoline page). Grounded on original_source's
// kernel/src/user/objects tree.
package objects

import "errors"

var (
	ErrUndersizeAlign    = errors.New("objects: alignment below page size")
	ErrOutOfMemory       = errors.New("objects: out of memory")
	ErrOutOfRange        = errors.New("objects: access out of range")
	ErrChannelDisconnect = errors.New("objects: peer channel is gone")
	ErrChannelEmpty      = errors.New("objects: no message queued")
)

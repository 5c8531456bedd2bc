// Package platform holds the collaborator contracts the core kernel
// logic treats as external: the SBI-substitute boot/io/power/timer
// surface, and the physical-memory registry every component that
// "dereferences" a PAddr (page-table frames, typed physical boxes)
// builds on. Grounded on original_source's platform/riscv64 glue and the
// teacher's direct-physical-map convention (biscuit/src/mem/mem.go's
// Dmap/Dmap_v2p), adapted to a host-process registry since Go gives no
// portable way to alias an arbitrary uintptr as a typed pointer the way
// the original's identity-mapped Dmap region does.
package platform

import "github.com/nekos-kernel/nekos/pkg/base"

// PhysTable is a concurrency-safe PAddr-keyed registry standing in for
// a direct physical map: anything that allocates a PAddr-addressed
// frame and needs to get back a typed view of its contents stores it
// here instead of casting the address to a pointer.
type PhysTable[T any] struct {
	m syncMap[base.PAddr, *T]
}

// NewPhysTable constructs an empty registry.
func NewPhysTable[T any]() *PhysTable[T] {
	return &PhysTable[T]{m: newSyncMap[base.PAddr, *T]()}
}

// Store records v as the contents backing addr.
func (t *PhysTable[T]) Store(addr base.PAddr, v *T) { t.m.Store(addr, v) }

// Load returns the contents backing addr, if any.
func (t *PhysTable[T]) Load(addr base.PAddr) (*T, bool) { return t.m.Load(addr) }

// Delete removes the entry for addr.
func (t *PhysTable[T]) Delete(addr base.PAddr) { t.m.Delete(addr) }

package base

import "sync/atomic"

// Singleton is a "set once, then read-only" cell, used for every global
// the boot sequence installs exactly once and never replaces: the frame
// allocator, the kernel heap, the scheduler, the per-hart trap frame
// pointer, the paging template. Grounded on original_source's
// SingletonCell (kernel/src/base/cell.rs), backed here by atomic.Pointer
// instead of spin::Once since the Go runtime already guarantees a
// goroutine-safe one-time publish through the pointer swap.
type Singleton[T any] struct {
	p atomic.Pointer[T]
}

// Initialize installs v. It panics if called more than once, matching the
// original's call_once semantics (a second boot-time initialize is a
// programming error, not a recoverable race).
func (s *Singleton[T]) Initialize(v T) {
	if !s.p.CompareAndSwap(nil, &v) {
		panic("base: Singleton initialized twice")
	}
}

// Get returns the installed value. It panics if Initialize has not run
// yet, matching the original's unchecked Deref on SingletonCell.
func (s *Singleton[T]) Get() *T {
	v := s.p.Load()
	if v == nil {
		panic("base: Singleton read before Initialize")
	}
	return v
}

// Maybe returns the installed value and whether it has been set, without
// panicking.
func (s *Singleton[T]) Maybe() (*T, bool) {
	v := s.p.Load()
	return v, v != nil
}

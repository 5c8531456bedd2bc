// Package proc implements the process/thread/handle/signal model of
// spec.md §4.9-§4.10: HandleSet (the per-process capability table),
// SignalSet (a per-thread FIFO of control signals), ThreadSet (a
// process's live thread registry), and Process/Thread themselves.
// Grounded on original_source's kernel/src/proc tree.
package proc

import "errors"

var (
	// ErrHandleTaken is returned by Extend when the reserved slot is
	// already occupied (spec.md §4.9: "fails if taken").
	ErrHandleTaken = errors.New("proc: handle id already installed")
	// ErrBadStatus is returned when an operation requires a process or
	// thread to still be live and it is not.
	ErrBadStatus = errors.New("proc: process or thread is not live")
)

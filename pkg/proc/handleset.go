package proc

import "sync"

// HandleID names a slot in a process's handle table. 0 is
// config.ProcessSelfHandle, the well-known self-reference every process
// gets at creation.
type HandleID uint64

// Object is any capability-bearing value a handle table can hold:
// *objects.Memory, *vmm.Area, *objects.Channel, or a *Process/*Thread
// handle. spec.md §4.9's "the runtime tag is the stored object's
// concrete type" is realized by storing `any` and letting the syscall
// layer type-switch on Lookup's result — there is no marker method to
// implement, matching spec.md §9's note that handles erase their
// concrete type until a downcast.
type Object any

// HandleSet is a process's capability table. Grounded on
// original_source's kernel/src/proc/process/handle_set.rs, generalized
// from a `BTreeMap` (ordering the original never actually depends on —
// spec.md §4.9 says "ordering is irrelevant; iteration is not exposed")
// to a plain Go map.
type HandleSet struct {
	mu    sync.Mutex
	count uint64
	m     map[HandleID]Object
}

// NewHandleSet builds an empty table whose dynamically issued ids start
// above the reserved window.
func NewHandleSet(reservedWidth uint64) *HandleSet {
	return &HandleSet{count: reservedWidth, m: make(map[HandleID]Object)}
}

// Extend installs obj at the reserved slot id. It returns ErrHandleTaken
// if id is already occupied — unlike the original's insert-and-return-
// previous, spec.md §4.9 asks for "fails if taken".
func (h *HandleSet) Extend(id HandleID, obj Object) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.m[id]; exists {
		return ErrHandleTaken
	}
	h.m[id] = obj
	return nil
}

// Push installs obj at a freshly allocated, monotonically increasing id
// above the reserved window.
func (h *HandleSet) Push(obj Object) HandleID {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := HandleID(h.count)
	h.count++
	h.m[id] = obj
	return id
}

// Lookup returns the object installed at id, if any.
func (h *HandleSet) Lookup(id HandleID) (Object, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, ok := h.m[id]
	return obj, ok
}

// Remove deletes and returns the object at id, if any.
func (h *HandleSet) Remove(id HandleID) (Object, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, ok := h.m[id]
	if ok {
		delete(h.m, id)
	}
	return obj, ok
}

package proc

import "sync"

// ThreadSet is a process's live-thread registry. Grounded on
// original_source's kernel/src/proc/process/thread_set.rs, keyed here by
// the *Thread pointer itself rather than its erased address (Go has no
// use for the original's `Arc::as_ptr as usize` trick — a pointer is
// already a valid, comparable map key).
type ThreadSet struct {
	mu      sync.Mutex
	threads map[*Thread]struct{}
}

// NewThreadSet returns an empty registry.
func NewThreadSet() *ThreadSet {
	return &ThreadSet{threads: make(map[*Thread]struct{})}
}

// Insert registers t.
func (s *ThreadSet) Insert(t *Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[t] = struct{}{}
}

// Remove unregisters t. Called once, from t's own death path.
func (s *ThreadSet) Remove(t *Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, t)
}

// Broadcast sends sig to every currently registered thread.
func (s *ThreadSet) Broadcast(sig Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t := range s.threads {
		t.Signals.Send(sig)
	}
}

// Len reports the number of live threads.
func (s *ThreadSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}

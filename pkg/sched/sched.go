// Package sched implements the vruntime-ordered scheduler of spec.md
// §4.8: a single global ready queue keyed on (vruntime, insertion
// order), where vruntime advances by 10^9/priority microseconds each
// time a task is polled. Grounded structurally on original_source's
// kernel/src/sched/scheduler.rs (the package-level Singleton scheduler,
// spawn/forever shape, and the initproc liveness panic), but the
// original's queue is a plain FIFO (crossbeam's SegQueue) — spec.md's
// vruntime ordering is a deliberate redesign this package implements
// from the specification directly, using container/heap instead.
package sched

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nekos-kernel/nekos/config"
)

// Outcome is what a Task's Resume reports back to the scheduler.
type Outcome int

const (
	// OutcomeYield means the task used its whole timeslice and remains
	// runnable; it is re-enqueued immediately.
	OutcomeYield Outcome = iota
	// OutcomeBlocked means the task parked itself; it will not run again
	// until something calls the Waker handed to it at spawn time.
	OutcomeBlocked
	// OutcomeDone means the task finished and is dropped.
	OutcomeDone
)

// Waker re-enqueues the task it was created for. Invoking it after the
// task is already back in the ready queue (e.g. a racing wakeup) is a
// harmless no-op re-insert, matching the original's tolerance for
// redundant Waker::wake calls.
type Waker func()

// Task is a unit of schedulable work — one kernel thread, in practice.
// Resume runs it until it yields, blocks, or finishes; it must stop
// promptly when ctx is done (the scheduler cancels ctx at the end of the
// task's timeslice). waker is a function the task must retain and
// invoke later if it returns OutcomeBlocked.
type Task interface {
	Resume(ctx context.Context, waker Waker) Outcome
	Priority() uint64
}

type item struct {
	vruntime uint64
	seq      uint64
	task     Task
	index    int
}

type taskHeap []*item

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].vruntime != h[j].vruntime {
		return h[i].vruntime < h[j].vruntime
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *taskHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Scheduler holds the single global ready queue.
type Scheduler struct {
	mu          sync.Mutex
	ready       taskHeap
	seq         uint64
	minVRuntime uint64
}

// New builds an empty scheduler.
func New() *Scheduler {
	s := &Scheduler{}
	heap.Init(&s.ready)
	return s
}

// step returns the vruntime advance for one poll at priority p: spec.md
// §4.8's "10^9 / priority microseconds", in config.VRuntimeStepPerMicros
// units.
func step(priority uint64) uint64 {
	if priority == 0 {
		priority = config.PriorityDefault
	}
	return config.VRuntimeStepPerMicros / priority
}

// Spawn enqueues task at the scheduler's current minimum vruntime, so a
// freshly spawned task runs promptly rather than waiting behind every
// already-advanced task.
func (s *Scheduler) Spawn(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.push(task, s.minVRuntime)
}

func (s *Scheduler) push(task Task, vruntime uint64) {
	s.seq++
	heap.Push(&s.ready, &item{vruntime: vruntime, seq: s.seq, task: task})
}

// wake re-enqueues task, clamping its vruntime to at least the current
// minimum plus one step — spec.md §4.8's starvation guard against a
// long-blocked task immediately preempting everything once it wakes.
func (s *Scheduler) wake(task Task, lastVRuntime uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	floor := s.minVRuntime + step(task.Priority())
	v := lastVRuntime
	if v < floor {
		v = floor
	}
	s.push(task, v)
}

// InitCheck reports whether the kernel's reason to run is still alive.
// Run panics if it ever reports false, matching spec.md §4.8's
// intentional hard stop.
type InitCheck func() bool

// Run drives the ready queue forever: pop the lowest-vruntime task,
// build its waker, run it for one timeslice, and either re-enqueue it
// (OutcomeYield) or let it go (OutcomeBlocked/OutcomeDone).
func (s *Scheduler) Run(initLive InitCheck) {
	for {
		if !initLive() {
			panic("sched: initproc exited unexpectedly")
		}
		task, vruntime, ok := s.pop()
		if !ok {
			continue
		}
		nextVRuntime := vruntime + step(task.Priority())
		waker := func() { s.wake(task, nextVRuntime) }

		ctx, cancel := context.WithTimeout(context.Background(), config.Timeslice)
		outcome := task.Resume(ctx, waker)
		cancel()

		switch outcome {
		case OutcomeYield:
			s.mu.Lock()
			if nextVRuntime < s.minVRuntime {
				nextVRuntime = s.minVRuntime
			}
			s.minVRuntime = nextVRuntime
			s.push(task, nextVRuntime)
			s.mu.Unlock()
		case OutcomeBlocked:
			logrus.WithField("priority", task.Priority()).Debug("sched: task blocked")
		case OutcomeDone:
			logrus.WithField("priority", task.Priority()).Debug("sched: task finished")
		}
	}
}

func (s *Scheduler) pop() (Task, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready.Len() == 0 {
		return nil, 0, false
	}
	it := heap.Pop(&s.ready).(*item)
	if it.vruntime > s.minVRuntime {
		s.minVRuntime = it.vruntime
	}
	return it.task, it.vruntime, true
}

// Len reports the number of runnable tasks, for tests and diagnostics.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready.Len()
}

package platform

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nekos-kernel/nekos/pkg/base"
)

// HostedProvider backs Provider with host-process primitives instead of
// real M-mode SBI ecalls: a pipe stands in for the debug console (the
// legacy console_putchar ecall in original_source's sbi.rs), and a
// time.Timer stands in for timer_set_timer, giving the trap engine and
// scheduler something real to drive under test the same way
// avagin-gvisor's platform layer backs a guest's memory and timers with
// host facilities rather than bare-metal ones.
type HostedProvider struct {
	readFD, writeFD int
	start           time.Time
	freq            uint64

	mu      sync.Mutex
	timer   *time.Timer
	harts   syncMap[uint64, HartStatus]
	onTimer func()
}

// NewHostedProvider opens the console pipe and starts the monotonic
// clock at freq ticks per second (the device tree's timebase-frequency
// property, in practice). onTimer, if non-nil, is invoked from a timer
// goroutine each time SetTimer's deadline elapses — the hosted stand-in
// for the timer interrupt a real hart would take.
func NewHostedProvider(freq uint64, onTimer func()) (*HostedProvider, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, err
	}
	return &HostedProvider{
		readFD:  fds[0],
		writeFD: fds[1],
		start:   time.Now(),
		freq:    freq,
		harts:   newSyncMap[uint64, HartStatus](),
		onTimer: onTimer,
	}, nil
}

// ConsoleWrite implements Provider.
func (h *HostedProvider) ConsoleWrite(p []byte) (int, error) {
	return unix.Write(h.writeFD, p)
}

// ConsoleRead drains bytes a test or host-side console viewer wrote
// through ConsoleWrite; not part of Provider, since real firmware has
// no readback path either.
func (h *HostedProvider) ConsoleRead(buf []byte) (int, error) {
	return unix.Read(h.readFD, buf)
}

// Shutdown implements Provider.
func (h *HostedProvider) Shutdown() error {
	h.mu.Lock()
	if h.timer != nil {
		h.timer.Stop()
	}
	h.mu.Unlock()
	_ = unix.Close(h.writeFD)
	_ = unix.Close(h.readFD)
	return nil
}

// HartStart implements Provider. entry and opaque are recorded nowhere:
// a hosted build has no second OS thread to actually jump a hart's PC
// into, so boot only tracks the lifecycle bookkeeping HartStatus reports.
func (h *HostedProvider) HartStart(id uint64, entry base.VAddr, opaque uint64) error {
	_ = entry
	_ = opaque
	h.harts.Store(id, HartStarted)
	return nil
}

// HartStop implements Provider.
func (h *HostedProvider) HartStop() error { return nil }

// HartStatus implements Provider. An id never started reads as Stopped,
// matching the HSM extension's status for a hart that was never woken.
func (h *HostedProvider) HartStatus(id uint64) (HartStatus, error) {
	s, ok := h.harts.Load(id)
	if !ok {
		return HartStopped, nil
	}
	return s, nil
}

// Now implements Provider.
func (h *HostedProvider) Now() uint64 {
	return uint64(time.Since(h.start)) * h.freq / uint64(time.Second)
}

// SetTimer implements Provider: arms a host timer to fire onTimer once
// the counter reaches value. A deadline already in the past fires
// immediately, matching the SBI timer ecall's "fire on next tick" floor.
func (h *HostedProvider) SetTimer(value uint64) error {
	if h.freq == 0 {
		return errors.New("platform: hosted provider has no timebase frequency")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timer != nil {
		h.timer.Stop()
	}
	now := h.Now()
	var delay time.Duration
	if value > now {
		delay = Elapsed(h, value-now)
	}
	h.timer = time.AfterFunc(delay, func() {
		if h.onTimer != nil {
			h.onTimer()
		}
	})
	return nil
}

// Frequency implements Provider.
func (h *HostedProvider) Frequency() uint64 { return h.freq }

package platform

import (
	"time"

	"github.com/nekos-kernel/nekos/pkg/base"
)

// HartStatus mirrors the three states SBI's HSM extension reports for
// hart_get_status, grounded on original_source's platform/riscv64/sbi.rs
// SBIError set narrowed to the subset hart lifecycle actually uses.
type HartStatus uint8

const (
	HartStarted HartStatus = iota
	HartStopped
	HartStartPending
)

// Provider is the platform collaborator the boot sequence and trap
// engine treat as external hardware: console output, power control,
// hart wake/status, and the monotonic timer source. Grounded on
// original_source's platform/riscv64/sbi.rs (the legacy and HSM/TIME
// SBI ecalls) and time.rs's HartTime, collapsed into one interface
// since a hosted build backs every one of these with the same process,
// not a real M-mode firmware layer reached through `ecall`.
type Provider interface {
	// ConsoleWrite sends bytes to the platform's debug console
	// (sbi.rs's console_putchar, called once per byte there; batched
	// here since a hosted backend has no reason not to).
	ConsoleWrite(p []byte) (int, error)

	// Shutdown powers the machine off. Never returns on a real
	// platform; a hosted Provider may return an error instead.
	Shutdown() error

	// HartStart wakes hart id at entry addr, carrying opaque as its
	// argument, mirroring sbi.rs's hart_start HSM call.
	HartStart(id uint64, entry base.VAddr, opaque uint64) error
	// HartStop parks the calling hart.
	HartStop() error
	// HartStatus reports hart id's current lifecycle state.
	HartStatus(id uint64) (HartStatus, error)

	// Now returns the platform's free-running timer count, riscv64's
	// `time` CSR in the original (time.rs's HartTime.now).
	Now() uint64
	// SetTimer arms the next timer interrupt at the given counter
	// value (sbi.rs's timer_set_timer, wrapped by HartTime.timer).
	SetTimer(value uint64) error
	// Frequency is the counter's ticks-per-second, used to convert
	// between counter values and time.Duration (time.rs's HartTime.freq,
	// sourced from the device tree's timebase-frequency property).
	Frequency() uint64
}

// Elapsed converts a counter delta into a time.Duration using p's
// frequency, the inverse of HartTime.add's delta-to-ticks conversion.
func Elapsed(p Provider, ticks uint64) time.Duration {
	freq := p.Frequency()
	if freq == 0 {
		return 0
	}
	return time.Duration(ticks) * time.Second / time.Duration(freq)
}

// Deadline converts a time.Duration into a future counter value, the
// conversion HartTime.add performs before arming a timer.
func Deadline(p Provider, now uint64, d time.Duration) uint64 {
	return now + uint64(d.Microseconds())*(p.Frequency()/1_000_000)
}

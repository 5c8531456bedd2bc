// Package blockdev is the virtio-mmio block device contract: submit a
// read or write by sector, then poll for its completion. Grounded on
// original_source's kernel/src/drivers/virtio_blk.rs's Blk, whose
// read/write/poll trio is a virtqueue-backed token scheme rather than a
// blocking call — this module keeps that same non-blocking submit/poll
// shape (consistent with pkg/objects' Channel, which spec.md §5 already
// commits to never suspending a thread) instead of turning it into a
// blocking ReadAt/WriteAt pair.
package blockdev

import "errors"

// SectorSize is the fixed unit Blk reads and writes, matching the
// original's `[u8; 512]` DMA buffers.
const SectorSize = 512

var (
	ErrBadConfig      = errors.New("blockdev: device reported an unusable config")
	ErrQueueFull      = errors.New("blockdev: no free virtqueue descriptor slot")
	ErrNoCompletion   = errors.New("blockdev: no request has completed yet")
	ErrUnknownToken   = errors.New("blockdev: completion token not recognized")
)

// Token identifies one in-flight request, original_source's BlkToken.
type Token uint16

// Status is the device-reported outcome of one completed request,
// original_source's BlkStatus.
type Status uint8

const (
	StatusOK Status = iota
	StatusIOError
	StatusUnsupported
)

// Completion is what Poll returns for a finished request: the sector
// buffer (valid for both Read and Write — the device hands the same
// buffer back either way) and the device's status code.
type Completion struct {
	Token  Token
	Status Status
	Buffer [SectorSize]byte
}

// Device is the capability a kernel component holds to talk to one
// virtio-mmio block device. Grounded on Blk's read/write/poll/
// interrupt_ack quartet.
type Device interface {
	// ReadSector submits a read of sector into the device's queue,
	// returning a token Poll will later report against.
	ReadSector(sector uint64) (Token, error)
	// WriteSector submits buf (exactly SectorSize bytes) to be written
	// at sector.
	WriteSector(sector uint64, buf [SectorSize]byte) (Token, error)
	// Poll drains the next completed request, if any.
	Poll() (Completion, bool)
	// InterruptAck acknowledges the device's completion interrupt,
	// letting a fresh one fire for the next completion.
	InterruptAck()
}

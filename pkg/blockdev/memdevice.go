package blockdev

import "sync"

// MemDevice is a Device backed by an in-memory sector array rather than
// a real virtio-mmio ring. It exists for hosted boot and tests, where
// there is no actual MMIO window to talk to; it still honors the
// submit-then-poll shape so callers never need to special-case it.
type MemDevice struct {
	mu       sync.Mutex
	sectors  map[uint64][SectorSize]byte
	pending  []Completion
	nextTok  Token
}

// NewMemDevice builds an empty in-memory block device.
func NewMemDevice() *MemDevice {
	return &MemDevice{sectors: make(map[uint64][SectorSize]byte)}
}

func (d *MemDevice) take() Token {
	d.nextTok++
	return d.nextTok
}

// ReadSector implements Device.
func (d *MemDevice) ReadSector(sector uint64) (Token, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tok := d.take()
	buf := d.sectors[sector]
	d.pending = append(d.pending, Completion{Token: tok, Status: StatusOK, Buffer: buf})
	return tok, nil
}

// WriteSector implements Device.
func (d *MemDevice) WriteSector(sector uint64, buf [SectorSize]byte) (Token, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tok := d.take()
	d.sectors[sector] = buf
	d.pending = append(d.pending, Completion{Token: tok, Status: StatusOK, Buffer: buf})
	return tok, nil
}

// Poll implements Device.
func (d *MemDevice) Poll() (Completion, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return Completion{}, false
	}
	c := d.pending[0]
	d.pending = d.pending[1:]
	return c, true
}

// InterruptAck implements Device; a no-op, since MemDevice never raises
// a real interrupt line.
func (d *MemDevice) InterruptAck() {}

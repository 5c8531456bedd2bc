package boot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekos-kernel/nekos/config"
	"github.com/nekos-kernel/nekos/pkg/base"
	"github.com/nekos-kernel/nekos/pkg/platform"
)

// buildELF hand-assembles the smallest valid little-endian ELF64
// executable with a single PT_LOAD segment carrying payload at vaddr,
// mirroring pkg/loader's test helper of the same shape (not reusable
// across packages since it is unexported there).
func buildELF(entry, vaddr uint64, payload []byte) []byte {
	const ehsize = 64
	const phsize = 56
	phoff := uint64(ehsize)
	dataOff := phoff + phsize

	var buf bytes.Buffer
	ident := [16]byte{0x7f, 'E', 'L', 'F', 2, 1, 1}
	buf.Write(ident[:])
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(config.ELFMachineRISCV))
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, entry)
	binary.Write(&buf, binary.LittleEndian, phoff)
	binary.Write(&buf, binary.LittleEndian, uint64(0))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint16(ehsize))
	binary.Write(&buf, binary.LittleEndian, uint16(phsize))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(0))
	binary.Write(&buf, binary.LittleEndian, uint16(0))
	binary.Write(&buf, binary.LittleEndian, uint16(0))

	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, uint32(0b101))
	binary.Write(&buf, binary.LittleEndian, dataOff)
	binary.Write(&buf, binary.LittleEndian, vaddr)
	binary.Write(&buf, binary.LittleEndian, vaddr)
	binary.Write(&buf, binary.LittleEndian, uint64(len(payload)))
	binary.Write(&buf, binary.LittleEndian, uint64(len(payload)))
	binary.Write(&buf, binary.LittleEndian, uint64(4096))

	buf.Write(payload)
	return buf.Bytes()
}

type fakeProvider struct {
	started map[uint64]bool
	fail    map[uint64]bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{started: make(map[uint64]bool), fail: make(map[uint64]bool)}
}

func (p *fakeProvider) ConsoleWrite(b []byte) (int, error) { return len(b), nil }
func (p *fakeProvider) Shutdown() error                    { return nil }
func (p *fakeProvider) HartStart(id uint64, entry base.VAddr, opaque uint64) error {
	if p.fail[id] {
		return errors.New("fake hart refused to start")
	}
	p.started[id] = true
	return nil
}
func (p *fakeProvider) HartStop() error                            { return nil }
func (p *fakeProvider) HartStatus(id uint64) (platform.HartStatus, error) {
	if p.started[id] {
		return platform.HartStarted, nil
	}
	return platform.HartStopped, nil
}
func (p *fakeProvider) Now() uint64          { return 0 }
func (p *fakeProvider) SetTimer(v uint64) error { return nil }
func (p *fakeProvider) Frequency() uint64    { return 10_000_000 }

func TestBootBringsUpSchedulerAndInitProcess(t *testing.T) {
	payload := make([]byte, 4096)
	copy(payload, []byte{0x13, 0x00, 0x00, 0x00})
	elfBytes := buildELF(0x1000, 0x1000, payload)

	provider := newFakeProvider()
	cfg := Config{
		DeviceTree: platform.DeviceTree{
			CPUs: []platform.CPU{
				{ID: 0, Frequency: 10_000_000},
				{ID: 1, Frequency: 10_000_000},
			},
			Memory: platform.MemoryRegion{Start: base.PAddr(0), Size: 64 * 1024 * 1024},
		},
		Provider:    provider,
		Images:      map[string][]byte{"init": elfBytes},
		InitProgram: "init",
	}

	result, err := Boot(cfg)
	require.NoError(t, err)
	require.NotNil(t, result.Init)
	require.NotNil(t, result.Heap)
	require.Equal(t, 1, result.Scheduler.Len())
	require.True(t, result.Init.Alive())
	require.True(t, provider.started[1], "boot should have woken the second hart")
	require.False(t, provider.started[0], "boot should never try to wake itself")
}

func TestRegisterVirtiosRejectsUndersizedWindow(t *testing.T) {
	devices := []platform.VirtioDevice{
		{Base: base.PAddr(0x1000), Size: config.PageSize},
		{Base: base.PAddr(0x2000), Size: 16},
	}
	ok, err := registerVirtios(devices)
	require.Len(t, ok, 1)
	require.Error(t, err)
}

func TestWakeSecondaryHartsAggregatesFailures(t *testing.T) {
	provider := newFakeProvider()
	provider.fail[2] = true
	cpus := []platform.CPU{{ID: 0}, {ID: 1}, {ID: 2}}

	err := wakeSecondaryHarts(provider, cpus)
	require.Error(t, err)
	require.True(t, provider.started[1])
	require.False(t, provider.started[0])
}

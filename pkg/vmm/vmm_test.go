package vmm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekos-kernel/nekos/pkg/base"
	"github.com/nekos-kernel/nekos/pkg/mem/frames"
)

var testInitOnce sync.Once

// testSetup installs a backing frame allocator and the shared kernel
// table exactly once for the whole package, since both are
// base.Singleton-backed and panic on a second Initialize.
func testSetup(t *testing.T) {
	t.Helper()
	testInitOnce.Do(func() {
		seg, ok := base.ByPoints(base.PAddr(0), base.PAddr(256*1024*1024))
		require.True(t, ok)
		buf := make([]byte, 128*1024)
		require.NoError(t, frames.Init(seg, 4096, buf))
		require.NoError(t, InitGlobalTable())
	})
}

// flatMap is a trivial in-memory Map/RandomAccess backed by already
// allocated physical frames, used to exercise Area.Map/Read/Write
// without a real objects.Memory.
type flatMap struct {
	layout base.MapLayout
	frames []base.PAddr
	store  [][]byte
}

func newFlatMap(t *testing.T, n int) *flatMap {
	t.Helper()
	layout, ok := base.NewMapLayout(uintptr(n)*Align4K, Align4K)
	require.True(t, ok)
	m := &flatMap{layout: layout}
	for i := 0; i < n; i++ {
		paddr, err := frames.Alloc(mustLayout(Align4K, Align4K))
		require.NoError(t, err)
		m.frames = append(m.frames, paddr)
		m.store = append(m.store, make([]byte, Align4K))
	}
	return m
}

func mustLayout(size, align uintptr) base.MapLayout {
	l, ok := base.NewMapLayout(size, align)
	if !ok {
		panic("bad layout")
	}
	return l
}

func (m *flatMap) Layout() base.MapLayout     { return m.layout }
func (m *flatMap) Len() uintptr               { return uintptr(len(m.frames)) }
func (m *flatMap) Index(i uintptr) base.PAddr { return m.frames[i] }

func (m *flatMap) Read(offset uintptr, buf []byte) error {
	page := offset / Align4K
	within := offset % Align4K
	copy(buf, m.store[page][within:])
	return nil
}

func (m *flatMap) Write(offset uintptr, buf []byte) error {
	page := offset / Align4K
	within := offset % Align4K
	copy(m.store[page][within:], buf)
	return nil
}

func TestPagingMapUnmapRoundTrip(t *testing.T) {
	testSetup(t)
	p, err := NewPaging()
	require.NoError(t, err)
	paddr, err := frames.Alloc(mustLayout(Align4K, Align4K))
	require.NoError(t, err)
	vaddr := base.VAddr(0x1000)
	require.NoError(t, p.Map(vaddr, paddr, Align4K, base.PermRW, true, false))
	got, err := p.Unmap(vaddr, Align4K)
	require.NoError(t, err)
	require.Equal(t, paddr, got)
}

func TestPagingMapOverlapPanics(t *testing.T) {
	testSetup(t)
	p, err := NewPaging()
	require.NoError(t, err)
	paddr, err := frames.Alloc(mustLayout(Align4K, Align4K))
	require.NoError(t, err)
	vaddr := base.VAddr(0x2000)
	require.NoError(t, p.Map(vaddr, paddr, Align4K, base.PermRW, true, false))
	require.Panics(t, func() {
		_ = p.Map(vaddr, paddr, Align4K, base.PermRW, true, false)
	})
}

func TestAreaMapReadWriteRoundTrip(t *testing.T) {
	testSetup(t)
	seg, ok := base.ByPoints(base.VAddr(0x10_0000_0000), base.VAddr(0x10_0001_0000))
	require.True(t, ok)
	paging, err := NewPaging()
	require.NoError(t, err)
	area, err := NewArea(seg, paging)
	require.NoError(t, err)

	m := newFlatMap(t, 2)
	vaddr, err := area.FindMap(m, base.PermRW)
	require.NoError(t, err)

	payload := []byte("hello area")
	require.NoError(t, area.Write(vaddr, payload))
	out := make([]byte, len(payload))
	require.NoError(t, area.Read(vaddr, out))
	require.Equal(t, payload, out)

	require.NoError(t, area.Unmap(vaddr))
	require.Error(t, area.Read(vaddr, out))
}

func TestAreaWriteRejectsReadOnly(t *testing.T) {
	testSetup(t)
	seg, ok := base.ByPoints(base.VAddr(0x20_0000_0000), base.VAddr(0x20_0001_0000))
	require.True(t, ok)
	paging, err := NewPaging()
	require.NoError(t, err)
	area, err := NewArea(seg, paging)
	require.NoError(t, err)

	m := newFlatMap(t, 1)
	vaddr, err := area.FindMap(m, base.PermRO)
	require.NoError(t, err)
	require.ErrorIs(t, area.Write(vaddr, []byte("x")), ErrPermissionDenied)
}

func TestAreaCreateNestedSubArea(t *testing.T) {
	testSetup(t)
	seg, ok := base.ByPoints(base.VAddr(0x30_0000_0000), base.VAddr(0x30_0010_0000))
	require.True(t, ok)
	paging, err := NewPaging()
	require.NoError(t, err)
	area, err := NewArea(seg, paging)
	require.NoError(t, err)

	child, err := area.Create(base.VAddr(0x30_0000_0000), 0x1000)
	require.NoError(t, err)
	require.NotNil(t, child)

	require.ErrorIs(t, area.Unmap(base.VAddr(0x30_0000_0000)), ErrUnmapAnArea)
}

package objects

import (
	"sync"

	"github.com/nekos-kernel/nekos/config"
	"github.com/nekos-kernel/nekos/pkg/base"
	"github.com/nekos-kernel/nekos/pkg/mem/frames"
)

// Memory is a plain frame-backed Area leaf, spec.md §4.11's
// memory_create object: a fixed number of page-aligned physical frames
// it owns exclusively, with byte-level random access.
//
// Grounded on original_source's kernel/src/user/objects/memory.rs,
// which reads/writes through the kernel's direct physical map. This
// build has no Dmap (see pkg/platform's doc comment), but Memory is the
// sole owner of the frames it allocates — nothing else ever aliases
// them — so there is no need for a PAddr-keyed byte registry the way
// pkg/vmm's page-table frames need one: Memory just keeps its own byte
// storage next to the PAddr tokens it hands to the page table.
type Memory struct {
	mu     sync.Mutex
	paddrs []base.PAddr
	bytes  [][]byte
	layout base.MapLayout
}

// Create allocates layout.Len() frames of layout.Align() bytes each.
func Create(layout base.MapLayout) (*Memory, error) {
	if layout.Align() < config.PageSize {
		return nil, ErrUndersizeAlign
	}
	point, _ := base.NewMapLayout(layout.Align(), layout.Align())
	n := layout.Len()
	paddrs := make([]base.PAddr, 0, n)
	bytes := make([][]byte, 0, n)
	for i := uintptr(0); i < n; i++ {
		paddr, err := frames.Alloc(point)
		if err != nil {
			for _, p := range paddrs {
				frames.Dealloc(p, point)
			}
			return nil, ErrOutOfMemory
		}
		paddrs = append(paddrs, paddr)
		bytes = append(bytes, make([]byte, layout.Align()))
	}
	return &Memory{paddrs: paddrs, bytes: bytes, layout: layout}, nil
}

// Release returns every frame Memory owns to the frame allocator. The
// caller must guarantee no Area leaf still references it.
func (m *Memory) Release() {
	point, _ := base.NewMapLayout(m.layout.Align(), m.layout.Align())
	for _, p := range m.paddrs {
		frames.Dealloc(p, point)
	}
}

func (m *Memory) Layout() base.MapLayout    { return m.layout }
func (m *Memory) Len() uintptr              { return uintptr(len(m.paddrs)) }
func (m *Memory) Index(i uintptr) base.PAddr { return m.paddrs[i] }

// Read copies len(buf) bytes starting at offset into buf.
func (m *Memory) Read(offset uintptr, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access(offset, buf, false)
}

// Write copies buf into Memory starting at offset.
func (m *Memory) Write(offset uintptr, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access(offset, buf, true)
}

func (m *Memory) access(offset uintptr, buf []byte, write bool) error {
	align := m.layout.Align()
	end := offset + uintptr(len(buf))
	if end > m.layout.Size() {
		return ErrOutOfRange
	}
	ptr := offset
	for ptr < end {
		frame := ptr / align
		within := ptr % align
		chunkEnd := within + (end - ptr)
		if chunkEnd > align {
			chunkEnd = align
		}
		n := chunkEnd - within
		src := ptr - offset
		if write {
			copy(m.bytes[frame][within:chunkEnd], buf[src:src+n])
		} else {
			copy(buf[src:src+n], m.bytes[frame][within:chunkEnd])
		}
		ptr += n
	}
	return nil
}

package buddy

import "github.com/nekos-kernel/nekos/pkg/base"

type arrayBlock struct {
	addr   uintptr
	height uint8
	nodes  []node
}

// ArrayBuddy is the flat []int8 array-tree flavor, used by the physical
// frame allocator: its block shape is fixed once at boot from a
// caller-supplied backing buffer, so there is no allocation on the hot
// alloc/dealloc path.
type ArrayBuddy struct {
	segment base.Segment[uintptr]
	blocks  []arrayBlock
}

// NewArrayBuddy partitions segment into power-of-two blocks and lays
// each one out, all-free, in consecutive slices of buffer. buffer must
// be at least 2*len(segment) entries long.
func NewArrayBuddy(segment base.Segment[uintptr], buffer []node) (*ArrayBuddy, error) {
	if segment.IsEmpty() {
		return nil, ErrZeroSize
	}
	length := uintptr(segment.WrappingEnd()) - uintptr(segment.Start())
	if length*2 > uintptr(len(buffer)) {
		return nil, ErrOutOfBounds
	}
	rest := buffer[:length*2]
	for i := range rest {
		rest[i] = totalFalse
	}
	parts := base.IntegerPartition(segment)
	blocks := make([]arrayBlock, 0, len(parts))
	for _, hp := range parts {
		addr, height := hp[0], uint8(hp[1])
		size := uintptr(2) << height
		blocks = append(blocks, arrayBlock{addr: addr, height: height, nodes: rest[:size]})
		rest = rest[size:]
	}
	return &ArrayBuddy{segment: segment, blocks: blocks}, nil
}

// Alloc finds a free, size-aligned (rounded up to the next power of two)
// position and marks it taken.
func (b *ArrayBuddy) Alloc(size uintptr) (uintptr, error) {
	addr, err := b.Find(size)
	if err != nil {
		return 0, err
	}
	seg, ok := base.BySize(addr, size)
	if !ok {
		return 0, ErrOutOfBounds
	}
	if err := b.Set(seg, true); err != nil {
		return 0, err
	}
	return addr, nil
}

// Dealloc marks [addr, addr+size) free. It panics if the region is not
// entirely taken beforehand, matching the data-structure invariant that
// a deallocation of an unknown address is fatal, not a recoverable
// error.
func (b *ArrayBuddy) Dealloc(addr, size uintptr) error {
	seg, ok := base.BySize(addr, size)
	if !ok {
		return ErrOutOfBounds
	}
	return b.Set(seg, false)
}

// Find returns a size-aligned address of a fully free region without
// marking it taken.
func (b *ArrayBuddy) Find(size uintptr) (uintptr, error) {
	if size == 0 {
		return 0, ErrZeroSize
	}
	h := nextPowerOfTwo(size)
	height := log2(h)
	for _, blk := range b.blocks {
		if pos, ok := dfsFind(blk.height, blk.nodes, height); ok {
			return blk.addr + pos, nil
		}
	}
	return 0, ErrOutOfBounds
}

// Get reports the uniform free/taken state of segment, or ok=false if
// the segment is mixed.
func (b *ArrayBuddy) Get(segment base.Segment[uintptr]) (value bool, ok bool, err error) {
	if segment.IsEmpty() {
		return false, false, ErrZeroSize
	}
	if !b.segment.Contains(segment) {
		return false, false, ErrOutOfBounds
	}
	idx := 0
	have := false
	var valid bool
	for _, hp := range base.IntegerPartition(segment) {
		addr, height := hp[0], uint8(hp[1])
		for {
			blk := b.blocks[idx]
			blkSeg, _ := base.BySize(blk.addr, uintptr(1)<<blk.height)
			partSeg, _ := base.BySize(addr, uintptr(1)<<height)
			if blkSeg.Contains(partSeg) {
				break
			}
			idx++
		}
		blk := b.blocks[idx]
		v, resolved := dfsGet(blk.height, blk.nodes, addr-blk.addr, height)
		if !resolved {
			return false, false, nil
		}
		if have && valid != v {
			return false, false, nil
		}
		valid, have = v, true
	}
	return valid, true, nil
}

// Set marks segment entirely val. It panics if segment is not uniformly
// !val beforehand (the "set asserts current state is the complement"
// contract) — a violation here means a caller double-freed or
// double-allocated, which is a fatal invariant break, not an Errno.
func (b *ArrayBuddy) Set(segment base.Segment[uintptr], val bool) error {
	if segment.IsEmpty() {
		return ErrZeroSize
	}
	if !b.segment.Contains(segment) {
		return ErrOutOfBounds
	}
	idx := 0
	for _, hp := range base.IntegerPartition(segment) {
		addr, height := hp[0], uint8(hp[1])
		for {
			blk := b.blocks[idx]
			blkSeg, _ := base.BySize(blk.addr, uintptr(1)<<blk.height)
			partSeg, _ := base.BySize(addr, uintptr(1)<<height)
			if blkSeg.Contains(partSeg) {
				break
			}
			idx++
		}
		blk := b.blocks[idx]
		cur, resolved := dfsGet(blk.height, blk.nodes, addr-blk.addr, height)
		if !resolved || cur == val {
			panic("buddy: set precondition violated, region was not uniformly the complement state")
		}
		setVal := totalFalse
		if val {
			setVal = totalTrue
		}
		dfsSet(blk.height, blk.nodes, addr-blk.addr, height, setVal)
	}
	return nil
}

func nextPowerOfTwo(x uintptr) uintptr {
	if x == 0 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	return x + 1
}

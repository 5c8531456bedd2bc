package buddy

import "github.com/nekos-kernel/nekos/pkg/base"

type treeBlock struct {
	addr   uintptr
	height uint8
	root   *treeNode
}

// TreeBuddy is the pointer-tree flavor, used by the user-space page
// allocator where areas come and go and a fixed array would either waste
// space or need resizing. Each block starts as a single all-free leaf
// and grows interior nodes lazily as splits occur.
type TreeBuddy struct {
	segment base.Segment[uintptr]
	blocks  []treeBlock
}

// NewTreeBuddy partitions segment into power-of-two blocks, each
// starting as a single all-free leaf.
func NewTreeBuddy(segment base.Segment[uintptr]) (*TreeBuddy, error) {
	if segment.IsEmpty() {
		return nil, ErrZeroSize
	}
	parts := base.IntegerPartition(segment)
	blocks := make([]treeBlock, 0, len(parts))
	for _, hp := range parts {
		blocks = append(blocks, treeBlock{addr: hp[0], height: uint8(hp[1]), root: newLeaf(false)})
	}
	return &TreeBuddy{segment: segment, blocks: blocks}, nil
}

// Alloc finds a free, size-aligned position and marks it taken.
func (b *TreeBuddy) Alloc(size uintptr) (uintptr, error) {
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

// Dealloc marks [addr, addr+size) free.
func (b *TreeBuddy) Dealloc(addr, size uintptr) error {
	seg, ok := base.BySize(addr, size)
	if !ok {
		return ErrOutOfBounds
	}
	return b.Set(seg, false)
}

// Find returns a size-aligned address of a fully free region without
// marking it taken.
func (b *TreeBuddy) Find(size uintptr) (uintptr, error) {
	if size == 0 {
		return 0, ErrZeroSize
	}
	h := nextPowerOfTwo(size)
	height := log2(h)
	for _, blk := range b.blocks {
		if pos, ok := dfsFindTree(blk.height, blk.root, height); ok {
			return blk.addr + pos, nil
		}
	}
	return 0, ErrOutOfBounds
}

// Get reports the uniform free/taken state of segment, or ok=false if
// the segment is mixed.
func (b *TreeBuddy) Get(segment base.Segment[uintptr]) (value bool, ok bool, err error) {
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
		v, resolved := dfsGetTree(blk.height, blk.root, addr-blk.addr, height)
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
// !val beforehand.
func (b *TreeBuddy) Set(segment base.Segment[uintptr], val bool) error {
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
		blk := &b.blocks[idx]
		cur, resolved := dfsGetTree(blk.height, blk.root, addr-blk.addr, height)
		if !resolved || cur == val {
			panic("buddy: set precondition violated, region was not uniformly the complement state")
		}
		dfsSetTree(blk.height, &blk.root, addr-blk.addr, height, val)
	}
	return nil
}

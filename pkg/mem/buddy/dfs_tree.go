package buddy

// treeNode is either a leaf (a uniform free/taken color) or an interior
// node caching the height of its tallest fully-free child subtree (c).
// Grounded on original_source's pages/buddy.rs Raw/Node pair, re-expressed
// without the boxed-enum indirection Rust needs: Go structs already
// carry an optional pair of children.
type treeNode struct {
	leaf  bool
	color bool // valid iff leaf
	c     uint8
	left  *treeNode
	right *treeNode
}

func newLeaf(color bool) *treeNode { return &treeNode{leaf: true, color: color} }

// merge folds two already-settled children (themselves of tree height
// height) into their parent, collapsing back to a leaf sentinel whenever
// both children agree.
func merge(height uint8, left, right *treeNode) *treeNode {
	switch {
	case left.leaf && right.leaf && !left.color && !right.color:
		return newLeaf(false)
	case left.leaf && right.leaf && left.color && right.color:
		return newLeaf(true)
	case !left.leaf && !right.leaf:
		c := left.c
		if right.c > c {
			c = right.c
		}
		return &treeNode{c: c, left: left, right: right}
	case (left.leaf && !left.color) || (right.leaf && !right.color):
		return &treeNode{c: height, left: left, right: right}
	case !left.leaf && right.leaf && right.color:
		return &treeNode{c: left.c, left: left, right: right}
	case left.leaf && left.color && !right.leaf:
		return &treeNode{c: right.c, left: left, right: right}
	default:
		panic("buddy: merge reached an inconsistent node pairing")
	}
}

func dfsGetTree(height uint8, u *treeNode, addr uintptr, queryHeight uint8) (bool, bool) {
	for i := height; i > queryHeight; i-- {
		if u.leaf {
			return u.color, true
		}
		if addr&(uintptr(1)<<(i-1)) == 0 {
			u = u.left
		} else {
			u = u.right
		}
	}
	if u.leaf {
		return u.color, true
	}
	return false, false
}

// dfsSetTree descends from root, lazily splitting sentinel leaves into
// fresh same-colored children as it passes through them, installs the
// new leaf color at the addressed node, then re-merges every ancestor it
// visited, bottom-up.
func dfsSetTree(height uint8, root **treeNode, addr uintptr, queryHeight uint8, val bool) {
	path := make([]**treeNode, 0, int(height-queryHeight))
	levels := make([]uint8, 0, int(height-queryHeight))
	u := root
	for i := height; i > queryHeight; i-- {
		path = append(path, u)
		levels = append(levels, i)
		if (*u).leaf {
			color := (*u).color
			*u = &treeNode{leaf: false, c: i, left: newLeaf(color), right: newLeaf(color)}
		}
		if addr&(uintptr(1)<<(i-1)) == 0 {
			u = &(*u).left
		} else {
			u = &(*u).right
		}
	}
	*u = newLeaf(val)
	for k := len(path) - 1; k >= 0; k-- {
		p := path[k]
		i := levels[k]
		*p = merge(i-1, (*p).left, (*p).right)
	}
}

func continuousOfTree(height uint8, u *treeNode) uintptr {
	if !u.leaf {
		return uintptr(1) << u.c
	}
	if u.color {
		return 0
	}
	return uintptr(1) << height
}

// dfsFindTree locates a free, queryHeight-aligned position within the
// block by best fit: at each level it descends into the child whose
// largest free run is the smallest one that still fits the request,
// taking the left (lower-address) child on a tie — the same rule
// dfsFind enforces over the array flavor.
func dfsFindTree(height uint8, u *treeNode, queryHeight uint8) (uintptr, bool) {
	if continuousOfTree(height, u) < uintptr(1)<<queryHeight {
		return 0, false
	}
	addr := uintptr(0)
	for i := height; i > queryHeight; i-- {
		if u.leaf {
			if u.color {
				panic("buddy: dfsFind descended into a taken leaf")
			}
			return addr, true
		}
		t := uintptr(1) << queryHeight
		l := continuousOfTree(i-1, u.left)
		r := continuousOfTree(i-1, u.right)
		if r < t || (t <= l && l <= r) {
			u = u.left
		} else {
			u = u.right
			addr |= uintptr(1) << (i - 1)
		}
	}
	if !u.leaf || u.color {
		panic("buddy: dfsFind landed on a non-free leaf")
	}
	return addr, true
}

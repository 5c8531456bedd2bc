package vmm

import (
	"github.com/nekos-kernel/nekos/config"
)

// UserSpace is one process's address space: its own page table, rooted
// by an Area tree over the user-reachable segment. Grounded on
// original_source's kernel/src/proc/vmm/mod.rs UserVmm, which pairs a
// Paging instance with exactly one top-level Area the same way.
type UserSpace struct {
	paging *RawPaging
	root   *Area
}

// NewUserSpace allocates a fresh page table (pre-seeded with the shared
// kernel upper half) and an empty Area tree over config.UserSegment.
func NewUserSpace() (*UserSpace, error) {
	paging, err := NewPaging()
	if err != nil {
		return nil, err
	}
	root, err := NewArea(config.UserSegment, paging)
	if err != nil {
		return nil, err
	}
	return &UserSpace{paging: paging, root: root}, nil
}

// Root returns the top-level Area new mappings are created under.
func (u *UserSpace) Root() *Area { return u.root }

// Token returns the satp-shaped value that activates this address
// space on a hart.
func (u *UserSpace) Token() PagingToken { return u.paging.Token() }

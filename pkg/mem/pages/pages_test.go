package pages

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekos-kernel/nekos/pkg/base"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	full, ok := base.ByPoints[base.VAddr](0, 1<<20)
	require.True(t, ok)
	p, err := New[string](full)
	require.NoError(t, err)

	seg, ok := base.BySize(base.VAddr(4096), uintptr(4096))
	require.True(t, ok)
	require.NoError(t, p.Acquire(seg, "leaf-a"))

	v, ok := p.Get(base.VAddr(4096))
	require.True(t, ok)
	require.Equal(t, "leaf-a", v)

	locSeg, locVal, ok := p.Locate(base.VAddr(4096 + 10))
	require.True(t, ok)
	require.Equal(t, seg, locSeg)
	require.Equal(t, "leaf-a", locVal)

	got, err := p.Release(base.VAddr(4096))
	require.NoError(t, err)
	require.Equal(t, "leaf-a", got)

	_, ok = p.Get(base.VAddr(4096))
	require.False(t, ok)
}

func TestAcquireRejectsOverlap(t *testing.T) {
	full, ok := base.ByPoints[base.VAddr](0, 1<<20)
	require.True(t, ok)
	p, err := New[int](full)
	require.NoError(t, err)

	s1, _ := base.BySize(base.VAddr(0), uintptr(8192))
	require.NoError(t, p.Acquire(s1, 1))

	s2, _ := base.BySize(base.VAddr(4096), uintptr(4096))
	require.ErrorIs(t, p.Acquire(s2, 2), ErrOverlapping)
}

func TestFindReturnsUnclaimedRegion(t *testing.T) {
	full, ok := base.ByPoints[base.VAddr](0, 1<<16)
	require.True(t, ok)
	p, err := New[int](full)
	require.NoError(t, err)

	layout, ok := base.NewMapLayout(4096, 4096)
	require.True(t, ok)
	seg, err := p.Find(layout)
	require.NoError(t, err)
	require.NoError(t, p.Acquire(seg, 1))

	seg2, err := p.Find(layout)
	require.NoError(t, err)
	require.NotEqual(t, seg, seg2)
}

func TestReleaseUnknownAddress(t *testing.T) {
	full, ok := base.ByPoints[base.VAddr](0, 1<<16)
	require.True(t, ok)
	p, err := New[int](full)
	require.NoError(t, err)
	_, err = p.Release(base.VAddr(123))
	require.ErrorIs(t, err, ErrNotFound)
}

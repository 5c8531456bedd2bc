package trap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekos-kernel/nekos/config"
	"github.com/nekos-kernel/nekos/pkg/vmm"
)

type scriptedHart struct {
	trap Trap
	seen Context
}

func (h *scriptedHart) RunUser(ctx *Context, token vmm.PagingToken) Trap {
	h.seen = *ctx
	ctx.SolveSyscall(config.ErrnoOK, 42)
	return h.trap
}

func TestSwitchRoundTripsContextAndDecodesTrap(t *testing.T) {
	var frame Frame
	ctx := NewContext()
	ctx.SetUser()
	ctx.SetPC(0x1000)
	hart := &scriptedHart{trap: Trap{Kind: KindSyscall, SyscallID: 7}}

	got := Switch(hart, &frame, &ctx, vmm.PagingToken(0))

	require.Equal(t, KindSyscall, got.Kind)
	require.True(t, got.IsException())
	require.False(t, got.IsInterrupt())
	require.EqualValues(t, 0x1000, hart.seen.SEPC)
	require.Equal(t, uint64(config.ErrnoOK), ctx.Regs[10])
	require.Equal(t, uint64(42), ctx.Regs[11])
}

func TestSolveBreakpointAdvancesPC(t *testing.T) {
	ctx := NewContext()
	ctx.SetPC(0x2000)
	ctx.SolveBreakpoint()
	require.EqualValues(t, 0x2002, ctx.SEPC)
}

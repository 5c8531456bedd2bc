package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHostedProviderConsoleRoundTrips(t *testing.T) {
	p, err := NewHostedProvider(1_000_000, nil)
	require.NoError(t, err)
	defer p.Shutdown()

	n, err := p.ConsoleWrite([]byte("boot"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	buf := make([]byte, 4)
	n, err = p.ConsoleRead(buf)
	require.NoError(t, err)
	require.Equal(t, "boot", string(buf[:n]))
}

func TestHostedProviderHartLifecycle(t *testing.T) {
	p, err := NewHostedProvider(1_000_000, nil)
	require.NoError(t, err)
	defer p.Shutdown()

	status, err := p.HartStatus(1)
	require.NoError(t, err)
	require.Equal(t, HartStopped, status)

	require.NoError(t, p.HartStart(1, 0x1000, 0))
	status, err = p.HartStatus(1)
	require.NoError(t, err)
	require.Equal(t, HartStarted, status)
}

func TestHostedProviderSetTimerFiresOnTimer(t *testing.T) {
	fired := make(chan struct{}, 1)
	p, err := NewHostedProvider(1000, func() { fired <- struct{}{} })
	require.NoError(t, err)
	defer p.Shutdown()

	require.NoError(t, p.SetTimer(p.Now()))
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

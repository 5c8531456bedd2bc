package objects

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekos-kernel/nekos/pkg/base"
	"github.com/nekos-kernel/nekos/pkg/mem/frames"
)

var testInitOnce sync.Once

func testSetup(t *testing.T) {
	t.Helper()
	testInitOnce.Do(func() {
		seg, ok := base.ByPoints(base.PAddr(0), base.PAddr(64*1024*1024))
		require.True(t, ok)
		buf := make([]byte, 32*1024)
		require.NoError(t, frames.Init(seg, 4096, buf))
	})
}

func TestMemoryReadWriteRoundTrip(t *testing.T) {
	testSetup(t)
	layout, ok := base.NewMapLayout(8192, 4096)
	require.True(t, ok)
	m, err := Create(layout)
	require.NoError(t, err)
	require.EqualValues(t, 2, m.Len())

	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, m.Write(4090, payload))
	out := make([]byte, len(payload))
	require.NoError(t, m.Read(4090, out))
	require.Equal(t, payload, out)
}

func TestMemoryWriteOutOfRange(t *testing.T) {
	testSetup(t)
	layout, ok := base.NewMapLayout(4096, 4096)
	require.True(t, ok)
	m, err := Create(layout)
	require.NoError(t, err)
	require.ErrorIs(t, m.Write(4090, make([]byte, 100)), ErrOutOfRange)
}

func TestChannelSendReceiveRoundTrip(t *testing.T) {
	l, r := NewChannelPair()
	require.NoError(t, l.Send(ChannelMessage{Bytes: []byte{1, 2, 3}}))
	msg, err := r.Receive()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, msg.Bytes)

	_, err = r.Receive()
	require.ErrorIs(t, err, ErrChannelEmpty)
}

func TestChannelSendAfterPeerDroppedFails(t *testing.T) {
	l, _ := dropPeer()
	runtime.GC()
	runtime.GC()
	require.ErrorIs(t, l.Send(ChannelMessage{Bytes: []byte{9}}), ErrChannelDisconnect)
}

// dropPeer builds a pair and returns only the surviving end, so the
// other end's last strong reference goes out of scope with the call.
func dropPeer() (*Channel, struct{}) {
	l, _ := NewChannelPair()
	return l, struct{}{}
}

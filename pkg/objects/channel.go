package objects

import (
	"sync"
	"weak"
)

// ChannelMessage is one enqueued item: either a raw byte payload or a
// capability object being transferred. Grounded on original_source's
// ChannelMessage enum (Bytes(Box<[u8]>) | Handle(Handle)); Object is an
// opaque capability value rather than a proc.Handle so this package does
// not need to import pkg/proc (which imports pkg/objects for Memory) —
// the handle-table install/extract happens on the proc side.
type ChannelMessage struct {
	Bytes    []byte
	Object   any
	IsHandle bool
}

// Channel is one end of a pair of connected message queues. Grounded on
// original_source's kernel/src/user/objects/channel/mod.rs: each end
// holds only a weak reference to its peer, per spec.md §9's "cyclic
// ownership" note, so the pair never forms a strong reference cycle and
// both ends are freed once every strong holder (a process's handle
// table) drops its reference. Go's weak package (1.24+) plays the exact
// role the original's Weak<Channel> does.
type Channel struct {
	mu    sync.Mutex
	queue []ChannelMessage
	peer  weak.Pointer[Channel]
}

// NewChannelPair builds two Channels, each weakly referencing the other.
func NewChannelPair() (*Channel, *Channel) {
	l := &Channel{}
	r := &Channel{}
	l.peer = weak.Make(r)
	r.peer = weak.Make(l)
	return l, r
}

// Send enqueues msg on the peer's queue. It reports ErrChannelDisconnect
// if the peer has already been dropped.
func (c *Channel) Send(msg ChannelMessage) error {
	peer := c.peer.Value()
	if peer == nil {
		return ErrChannelDisconnect
	}
	peer.mu.Lock()
	defer peer.mu.Unlock()
	peer.queue = append(peer.queue, msg)
	return nil
}

// Receive dequeues the next message on this end, or ErrChannelEmpty if
// none is queued — channels are non-blocking, per spec.md §5's
// "suspension points" note that current objects never suspend a thread,
// only return Empty for the caller to poll and yield on.
func (c *Channel) Receive() (ChannelMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return ChannelMessage{}, ErrChannelEmpty
	}
	msg := c.queue[0]
	c.queue = c.queue[1:]
	return msg, nil
}

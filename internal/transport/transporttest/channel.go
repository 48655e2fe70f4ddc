// Package transporttest provides an in-memory scripted transport.Channel.
package transporttest

import (
	"errors"
	"sync"
)

// Channel replays scripted replies: each Write queues the next entry of
// Replies for reading. Reads with nothing queued return (0, nil) like a
// serial read timeout.
type Channel struct {
	Replies [][]byte
	Stall   int // empty reads served before each reply
	Chunk   int // max bytes per Read, 0 for no limit
	Drop    int // leading writes swallowed without a reply

	OpenErr  error
	WriteErr error
	ReadErr  error

	mu      sync.Mutex
	written [][]byte
	pending []byte
	stalls  int
	opened  bool
	closed  bool
}

// New returns a channel that answers the writes with replies, in order.
func New(replies ...[]byte) *Channel {
	return &Channel{Replies: replies}
}

func (c *Channel) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OpenErr != nil {
		return c.OpenErr
	}
	c.opened, c.closed = true, false
	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, errors.New("channel closed")
	}
	if c.WriteErr != nil {
		return 0, c.WriteErr
	}
	c.written = append(c.written, append([]byte(nil), p...))
	if c.Drop > 0 {
		c.Drop--
		return len(p), nil
	}
	if len(c.Replies) > 0 {
		c.pending = append(c.pending, c.Replies[0]...)
		c.Replies = c.Replies[1:]
		c.stalls = c.Stall
	}
	return len(p), nil
}

func (c *Channel) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, errors.New("channel closed")
	}
	if c.ReadErr != nil {
		return 0, c.ReadErr
	}
	if c.stalls > 0 {
		c.stalls--
		return 0, nil
	}
	if c.Chunk > 0 && len(p) > c.Chunk {
		p = p[:c.Chunk]
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Written returns every frame written so far.
func (c *Channel) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

// Opened reports whether Open succeeded and Close has not been called since.
func (c *Channel) Opened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened && !c.closed
}

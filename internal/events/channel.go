package events

import "sync"

// Channel holds the most recent frame's events. Publishing a frame replaces
// the previous one, so nothing leaks across frame boundaries.
type Channel struct {
	mu      sync.RWMutex
	frame   Frame
	readers map[string]*Reader
}

func NewChannel() *Channel {
	return &Channel{
		readers: make(map[string]*Reader),
	}
}

// Publish makes f the current frame. Only the tracking step should call it.
func (c *Channel) Publish(f Frame) {
	c.mu.Lock()
	c.frame = f
	c.mu.Unlock()
}

// Seq returns the sequence number of the current frame, zero before the
// first publish.
func (c *Channel) Seq() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frame.Seq
}

// Latest returns a copy of the current frame.
func (c *Channel) Latest() Frame {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frame.Clone()
}

// Subscribe registers a named reader. The reader starts after the frame that
// is current at subscription time. Subscribing twice with the same name
// returns the existing reader.
func (c *Channel) Subscribe(name string) *Reader {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.readers[name]; ok {
		return r
	}
	r := &Reader{name: name, ch: c, last: c.frame.Seq}
	c.readers[name] = r
	return r
}

// Readers returns the names of every subscribed reader.
func (c *Channel) Readers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.readers))
	for name := range c.readers {
		names = append(names, name)
	}
	return names
}

// Reader is one subscriber's cursor over the channel. A Reader belongs to a
// single consumer and is not safe for concurrent use.
type Reader struct {
	name   string
	ch     *Channel
	last   uint64
	missed uint64
}

func (r *Reader) Name() string {
	return r.name
}

// Read returns the current frame if this reader has not seen it yet.
func (r *Reader) Read() (Frame, bool) {
	r.ch.mu.RLock()
	frame := r.ch.frame
	r.ch.mu.RUnlock()

	if frame.Seq == 0 || frame.Seq <= r.last {
		return Frame{}, false
	}
	if gap := frame.Seq - r.last; gap > 1 {
		r.missed += gap - 1
	}
	r.last = frame.Seq
	return frame.Clone(), true
}

// Missed counts frames that were replaced before this reader read them.
func (r *Reader) Missed() uint64 {
	return r.missed
}

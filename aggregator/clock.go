package aggregator

import "sync/atomic"

// Clock is a process-wide monotonic logical clock. Every buffered event and
// captured message is stamped from the same clock, so merge ordering is
// exact rather than dependent on wall-clock resolution.
type Clock struct {
	n atomic.Uint64
}

// Next returns the next tick. Safe for concurrent use.
func (c *Clock) Next() uint64 {
	return c.n.Add(1)
}

// Now returns the most recently issued tick without advancing the clock.
func (c *Clock) Now() uint64 {
	return c.n.Load()
}

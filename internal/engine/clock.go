package engine

import "sync/atomic"

// Clock numbers machine events without wall-clock time. A Machine owns two:
//
//   - The cycle clock ticks once at the start of every Run, so the first
//     cycle is 1. Load resets it, which makes a reloaded program count its
//     cycles from 1 again. Machine.Cycle reads it.
//   - The dispatch clock ticks once per verb dispatch and is never reset.
//     Its value is the seq of a firing: machine-wide, starting at 1, and
//     strictly increasing across reloads, so every firing a Tracer or the
//     trace store sees has a unique, ordered seq.
//
// Now may be called from another goroutine while Run ticks the clock, so a
// host can watch cycle progress without holding the machine.
type Clock struct {
	n atomic.Int64
}

// NewClock returns a clock that has not ticked yet.
func NewClock() *Clock {
	return &Clock{}
}

// Tick advances the clock and returns the new value.
func (c *Clock) Tick() int64 {
	return c.n.Add(1)
}

// Now returns the value of the last tick, or 0 if the clock never ticked.
func (c *Clock) Now() int64 {
	return c.n.Load()
}

// Reset rewinds the clock so the next Tick returns 1.
func (c *Clock) Reset() {
	c.n.Store(0)
}

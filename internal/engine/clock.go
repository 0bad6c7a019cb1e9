package engine

import "sync/atomic"

// Clock is the game's logical clock. Every accepted start or continue event
// is stamped with the next value; the current value is part of each snapshot
// so a restore rewinds it and a replay re-issues the same numbers.
//
// Wall-clock time never orders anything.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming at start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued value.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Reset moves the clock to seq, for snapshot restore.
func (c *Clock) Reset(seq int64) {
	c.seq.Store(seq)
}

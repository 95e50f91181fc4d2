// Package clock implements the phase-aligned round timer: the arithmetic
// that turns a fixed start time and tick length into a round index, plus
// a recurring event source that fires on tick boundaries.
package clock

import (
	"context"
	"math"
	"time"
)

// Clock computes round indices relative to a fixed start time and tick
// length. It holds no mutable state; every method is a pure function of
// wall-clock time.
type Clock struct {
	start time.Time
	tick  time.Duration
}

// New returns a Clock with round zero at start and the given tick length.
func New(start time.Time, tick time.Duration) Clock {
	return Clock{start: start, tick: tick}
}

// Start returns the configured round-zero time.
func (c Clock) Start() time.Time { return c.start }

// Tick returns the configured round length.
func (c Clock) Tick() time.Duration { return c.tick }

// CurrentTick returns floor((t - start) / tick). Negative before start.
func (c Clock) CurrentTick(t time.Time) int64 {
	delta := t.Sub(c.start).Seconds()
	return int64(math.Floor(delta / c.tick.Seconds()))
}

// TickStart returns the wall-clock instant at which round n begins.
func (c Clock) TickStart(n int64) time.Time {
	return c.start.Add(time.Duration(n) * c.tick)
}

// SleepUntilStart blocks until wall-clock time reaches the configured
// start, or until ctx is cancelled. If the start has already passed it
// returns immediately.
func (c Clock) SleepUntilStart(ctx context.Context) {
	wait := time.Until(c.start)
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// TickInterval is a recurring event source: it fires at start + n*tick +
// offset for every integer n >= k, where k is the smallest value making
// the first firing strictly in the future at construction time. A firing
// missed by more than one tick is skipped, not coalesced: the channel
// never queues a backlog, it always reports the next integral boundary.
type TickInterval struct {
	c      Clock
	offset time.Duration
	ch     chan int64
	done   chan struct{}
}

// NewTickInterval starts the interval's internal goroutine and returns it.
// Call Stop to release resources.
func NewTickInterval(c Clock, offset time.Duration) *TickInterval {
	ti := &TickInterval{
		c:      c,
		offset: offset,
		ch:     make(chan int64),
		done:   make(chan struct{}),
	}
	go ti.run()
	return ti
}

// C returns the channel on which tick indices are delivered.
func (ti *TickInterval) C() <-chan int64 { return ti.ch }

// Stop terminates the interval's goroutine. Safe to call once.
func (ti *TickInterval) Stop() { close(ti.done) }

func (ti *TickInterval) run() {
	n := ti.firstIndex()
	for {
		fireAt := ti.fireTime(n)
		wait := time.Until(fireAt)
		if wait < 0 {
			// Fell behind: skip forward to the next boundary strictly in
			// the future rather than firing a backlog.
			n = ti.firstIndexAfter(time.Now())
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ti.done:
			timer.Stop()
			return
		}
		select {
		case ti.ch <- n:
		case <-ti.done:
			return
		}
		n++
	}
}

func (ti *TickInterval) fireTime(n int64) time.Time {
	return ti.c.TickStart(n).Add(ti.offset)
}

// firstIndex finds the smallest n such that fireTime(n) is strictly after
// now, evaluated at construction time.
func (ti *TickInterval) firstIndex() int64 {
	return ti.firstIndexAfter(time.Now())
}

func (ti *TickInterval) firstIndexAfter(now time.Time) int64 {
	// n such that start + n*tick + offset > now
	// n > (now - start - offset) / tick
	delta := now.Sub(ti.c.start) - ti.offset
	n := int64(math.Floor(delta.Seconds()/ti.c.tick.Seconds())) + 1
	return n
}

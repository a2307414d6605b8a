package util

import (
	"context"
	"time"

	"github.com/tilinna/clock"
)

// AlignedTicker fires on multiples of interval (plus offset) rather than interval after it was created.
// Instead of firing at:
// [T+1*interval, T+2*interval, T+3*interval, ...]
//
// It will fire at:
// r = roundup(T-offset, interval)+offset
// [r, r+1*interval, r+2*interval, ...]
//
// The time.Time sent to the channel is the boundary, not the actual time of firing.  Like time.Ticker,
// ticks are dropped if the reader falls behind.
type AlignedTicker struct {
	C      <-chan time.Time
	c      chan time.Time
	chStop chan struct{}

	interval time.Duration
	offset   time.Duration
}

// NewAlignedTicker creates an AlignedTicker driven by the clock attached to ctx.
func NewAlignedTicker(ctx context.Context, interval, offset time.Duration) *AlignedTicker {
	ch := make(chan time.Time, 1)
	at := &AlignedTicker{
		C:        ch,
		c:        ch,
		chStop:   make(chan struct{}),
		interval: interval,
		offset:   offset,
	}
	go at.run(clock.FromContext(ctx))
	return at
}

func (at *AlignedTicker) next(now time.Time) time.Time {
	return now.Add(-at.offset).Truncate(at.interval).Add(at.interval).Add(at.offset)
}

func (at *AlignedTicker) run(clck clock.Clock) {
	boundary := at.next(clck.Now())
	tmr := clck.NewTimer(boundary.Sub(clck.Now()))
	defer tmr.Stop()
	for {
		select {
		case <-at.chStop:
			return
		case <-tmr.C:
		}
		select {
		case at.c <- boundary:
		default:
		}
		boundary = at.next(clck.Now())
		tmr.Reset(boundary.Sub(clck.Now()))
	}
}

// Stop turns off the ticker.  No more ticks will be sent after Stop returns.
func (at *AlignedTicker) Stop() {
	close(at.chStop)
}

// NewTicker returns a channel of ticks every interval and a function to stop them.  If aligned is set the
// ticks fall on interval boundaries, otherwise they start interval after now.
func NewTicker(ctx context.Context, interval time.Duration, aligned bool) (<-chan time.Time, func()) {
	if aligned {
		at := NewAlignedTicker(ctx, interval, 0)
		return at.C, at.Stop
	}
	t := clock.FromContext(ctx).NewTicker(interval)
	return t.C, t.Stop
}

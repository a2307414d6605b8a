// Package stats records the server's own operational metrics.
package stats

import (
	"context"
	"time"
)

// Statser is the interface for sending internal metrics
type Statser interface {
	Gauge(name string, value float64)
	Count(name string, amount float64)
	Increment(name string)
	TimingDuration(name string, d time.Duration)
	NewTimer(name string) *Timer
}

type statserKey int

const statserContextKey = statserKey(0)

var nullStatser = &NullStatser{}

// NewContext attaches a Statser to a Context
func NewContext(ctx context.Context, statser Statser) context.Context {
	return context.WithValue(ctx, statserContextKey, statser)
}

// FromContext returns a Statser from a Context.  Always succeeds, will return a NullStatser if there is no
// statser present.
func FromContext(ctx context.Context) Statser {
	if statser, ok := ctx.Value(statserContextKey).(Statser); ok {
		return statser
	}
	return nullStatser
}

// Timer times an operation and reports it to its Statser.
type Timer struct {
	statser Statser
	name    string
	start   time.Time
}

func newTimer(statser Statser, name string) *Timer {
	return &Timer{
		statser: statser,
		name:    name,
		start:   time.Now(),
	}
}

// Send reports the time elapsed since the timer was created.
func (t *Timer) Send() {
	t.statser.TimingDuration(t.name, time.Since(t.start))
}

// NullStatser is a Statser that does nothing
type NullStatser struct{}

// NewNullStatser returns a Statser that discards everything.
func NewNullStatser() Statser {
	return &NullStatser{}
}

func (ns *NullStatser) Gauge(name string, value float64)            {}
func (ns *NullStatser) Count(name string, amount float64)           {}
func (ns *NullStatser) Increment(name string)                       {}
func (ns *NullStatser) TimingDuration(name string, d time.Duration) {}

func (ns *NullStatser) NewTimer(name string) *Timer {
	return newTimer(ns, name)
}

package statsd

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"
	"go.uber.org/atomic"

	"github.com/pencil-metrics/pencil"
	"github.com/pencil-metrics/pencil/internal/util"
	"github.com/pencil-metrics/pencil/pkg/stats"
)

// Flush cycle states.
const (
	stateIdle int32 = iota
	stateAggregating
	stateTransmitting
)

var stateNames = map[int32]string{
	stateIdle:         "idle",
	stateAggregating:  "aggregating",
	stateTransmitting: "transmitting",
}

// FlusherStats holds statistics for a MetricFlusher.
type FlusherStats struct {
	State          string
	LastFlush      time.Time // Last successful delivery
	LastFlushError time.Time // Last failed delivery
	Requests       uint64    // Messages drained from the buffer
	SkippedFlushes uint64    // Triggers that found a cycle already in flight
}

// MetricFlusher periodically drains the MessageBuffer into the MetricAggregator, appends the report to
// the Backlog and tries to deliver the whole Backlog to the Backend.  At most one cycle runs at a time.
type MetricFlusher struct {
	lastFlush      *atomic.Int64 // Unix timestamp in nsec.
	lastFlushError *atomic.Int64 // Unix timestamp in nsec.
	requests       *atomic.Uint64
	skipped        *atomic.Uint64
	state          *atomic.Int32

	flushInterval time.Duration
	flushAligned  bool
	buffer        *MessageBuffer
	aggregator    *MetricAggregator
	backlog       *Backlog
	backend       pencil.Backend
	logger        logrus.FieldLogger
}

// NewMetricFlusher creates a new MetricFlusher with provided configuration.
func NewMetricFlusher(
	flushInterval time.Duration,
	flushAligned bool,
	buffer *MessageBuffer,
	aggregator *MetricAggregator,
	backlog *Backlog,
	backend pencil.Backend,
	logger logrus.FieldLogger,
) *MetricFlusher {
	return &MetricFlusher{
		lastFlush:      atomic.NewInt64(0),
		lastFlushError: atomic.NewInt64(0),
		requests:       atomic.NewUint64(0),
		skipped:        atomic.NewUint64(0),
		state:          atomic.NewInt32(stateIdle),
		flushInterval:  flushInterval,
		flushAligned:   flushAligned,
		buffer:         buffer,
		aggregator:     aggregator,
		backlog:        backlog,
		backend:        backend,
		logger:         logger,
	}
}

// Run runs the MetricFlusher until ctx is done.  A cycle in progress when ctx is cancelled runs to
// completion before Run returns, bounded by the backend's own timeouts.
func (f *MetricFlusher) Run(ctx context.Context) {
	ch, stop := util.NewTicker(ctx, f.flushInterval, f.flushAligned)
	defer stop()
	flushCtx := detach(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case thisFlush := <-ch: // Time to flush to the backend
			f.Flush(flushCtx, thisFlush)
		}
	}
}

// detach returns a context that is never cancelled but carries the clock and statser of ctx.
func detach(ctx context.Context) context.Context {
	return stats.NewContext(clock.Context(context.Background(), clock.FromContext(ctx)), stats.FromContext(ctx))
}

// Flush runs one cycle stamped with now.  It returns false without doing anything if another cycle is
// in flight.
func (f *MetricFlusher) Flush(ctx context.Context, now time.Time) bool {
	if !f.state.CAS(stateIdle, stateAggregating) {
		f.skipped.Inc()
		f.logger.Debug("Flush already in progress, skipping")
		return false
	}
	defer f.state.Store(stateIdle)

	statser := stats.FromContext(ctx)
	timerTotal := statser.NewTimer("flusher.total_time")
	defer timerTotal.Send()

	messages := f.buffer.Drain()
	f.requests.Add(uint64(len(messages)))
	f.logger.WithField("messages", len(messages)).Debug("Flushing message buffer")

	f.aggregator.Receive(messages)
	if lines := f.aggregator.Report(now); len(lines) > 0 {
		if dropped := f.backlog.Append([]byte(strings.Join(lines, "\n"))); dropped > 0 {
			statser.Count("backlog.dropped_batches", float64(dropped))
			f.logger.WithField("dropped", dropped).Warn("Backlog is full, dropped oldest reports")
		}
	}

	f.state.Store(stateTransmitting)
	f.transmit(ctx, statser)
	statser.Gauge("backlog.batches", float64(f.backlog.Len()))
	statser.Gauge("backlog.bytes", float64(f.backlog.Size()))
	return true
}

func (f *MetricFlusher) transmit(ctx context.Context, statser stats.Statser) {
	payload, n := f.backlog.Snapshot()
	if n == 0 {
		f.logger.Debug("Backlog is empty, not sending data")
		return
	}
	clck := clock.FromContext(ctx)
	logger := f.logger.WithFields(logrus.Fields{
		"backend": f.backend.Name(),
		"batches": n,
		"bytes":   len(payload),
	})
	logger.Debug("Sending backlog")

	timerSend := statser.NewTimer("flusher.send_time")
	err := f.backend.Send(ctx, payload)
	timerSend.Send()
	if err != nil {
		f.lastFlushError.Store(clck.Now().UnixNano())
		statser.Increment("flusher.send_failures")
		logger.WithError(err).Errorf("Could not flush data to backend, will try again in %s", f.flushInterval)
		return
	}
	f.backlog.Release(n)
	f.lastFlush.Store(clck.Now().UnixNano())
	statser.Count("flusher.bytes_sent", float64(len(payload)))
	logger.Debug("Sent backlog")
}

func unixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// GetStats returns current MetricFlusher stats. Safe for concurrent use.
func (f *MetricFlusher) GetStats() FlusherStats {
	return FlusherStats{
		State:          stateNames[f.state.Load()],
		LastFlush:      unixNano(f.lastFlush.Load()),
		LastFlushError: unixNano(f.lastFlushError.Load()),
		Requests:       f.requests.Load(),
		SkippedFlushes: f.skipped.Load(),
	}
}

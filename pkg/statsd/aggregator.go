package statsd

import (
	"math"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/pencil-metrics/pencil"
	"github.com/pencil-metrics/pencil/pkg/stats"
)

// Timer sub-metric suffixes, in emission order.
const (
	suffixCount = "count"
	suffixLower = "lower"
	suffixAvg   = "avg"
	suffixSum   = "sum"
	suffixUpper = "upper"
)

type counter struct {
	sum     float64
	samples int // samples since the last report, the key is only reported when non-zero
}

// AggregatorStats holds lifetime statistics of a MetricAggregator.
type AggregatorStats struct {
	Processed uint64
	BadLines  uint64
}

// MetricAggregator turns raw messages into counters, gauges and timers, and renders them as Graphite
// plaintext lines once per flush.
type MetricAggregator struct {
	// Counter fields below must be read/written only using atomic instructions.
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	// See https://golang.org/pkg/sync/atomic/#pkg-note-BUG
	processed uint64
	badLines  uint64

	flushInterval  time.Duration
	badLineLimiter *rate.Limiter // nil disables warnings about bad lines
	logger         logrus.FieldLogger
	statser        stats.Statser

	mu       sync.Mutex
	counters map[string]*counter
	gauges   map[string]string
	timers   map[string][]float64
}

// NewMetricAggregator creates a new MetricAggregator.  flushInterval is the divisor for counter rates.
func NewMetricAggregator(flushInterval time.Duration, badLineLimiter *rate.Limiter, logger logrus.FieldLogger) *MetricAggregator {
	return &MetricAggregator{
		flushInterval:  flushInterval,
		badLineLimiter: badLineLimiter,
		logger:         logger,
		statser:        stats.NewNullStatser(), // Will probably be replaced via SetStatser
		counters:       map[string]*counter{},
		gauges:         map[string]string{},
		timers:         map[string][]float64{},
	}
}

// SetStatser replaces the statser used for internal metrics.
func (a *MetricAggregator) SetStatser(statser stats.Statser) {
	a.statser = statser
}

// Receive parses and aggregates the messages of one drain.  Malformed messages are counted and skipped.
func (a *MetricAggregator) Receive(messages []string) {
	var processed, bad uint64
	a.mu.Lock()
	for _, msg := range messages {
		s, err := ParseLine(msg)
		if err != nil {
			bad++
			a.logBadLine(msg, err)
			continue
		}
		processed++
		switch s.Type {
		case pencil.TIMER:
			a.timers[s.Key] = append(a.timers[s.Key], s.Value)
		case pencil.GAUGE:
			a.gauges[s.Key] = s.Raw
		default:
			c, ok := a.counters[s.Key]
			if !ok {
				c = &counter{}
				a.counters[s.Key] = c
			}
			c.sum += s.Value
			c.samples++
		}
	}
	a.mu.Unlock()

	atomic.AddUint64(&a.processed, processed)
	atomic.AddUint64(&a.badLines, bad)
	a.statser.Count("aggregator.processed", float64(processed))
	a.statser.Count("aggregator.bad_lines", float64(bad))
}

func (a *MetricAggregator) logBadLine(line string, err error) {
	// logging as debug to avoid spamming logs when a bad actor sends
	// badly formatted messages
	logger := a.logger.WithError(err).WithField("line", line)
	if a.badLineLimiter != nil && a.badLineLimiter.Allow() {
		logger.Warn("Got a bad line")
		return
	}
	logger.Debug("Got a bad line")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func line(key, suffix, value string, ts int64) string {
	if suffix != "" {
		key = key + "." + suffix
	}
	return key + " " + value + " " + strconv.FormatInt(ts, 10)
}

// Report renders everything aggregated since the previous Report, timestamped with ts, and resets
// counters and timers.  Gauges keep their last value and are reported every time.
func (a *MetricAggregator) Report(ts time.Time) []string {
	now := ts.Unix()
	flushInSeconds := float64(a.flushInterval) / float64(time.Second)

	a.mu.Lock()
	defer a.mu.Unlock()

	var lines []string

	timerKeys := make([]string, 0, len(a.timers))
	for k := range a.timers {
		timerKeys = append(timerKeys, k)
	}
	sort.Strings(timerKeys)
	for _, key := range timerKeys {
		values := a.timers[key]
		if len(values) == 0 {
			continue
		}
		lower, upper, sum := math.Inf(1), math.Inf(-1), 0.0
		for _, v := range values {
			lower = math.Min(lower, v)
			upper = math.Max(upper, v)
			sum += v
		}
		count := len(values)
		lines = append(lines,
			line(key, suffixCount, strconv.Itoa(count), now),
			line(key, suffixLower, formatFloat(lower), now),
			line(key, suffixAvg, formatFloat(sum/float64(count)), now),
			line(key, suffixSum, formatFloat(sum), now),
			line(key, suffixUpper, formatFloat(upper), now),
		)
		a.timers[key] = values[:0]
	}

	gaugeKeys := make([]string, 0, len(a.gauges))
	for k := range a.gauges {
		gaugeKeys = append(gaugeKeys, k)
	}
	sort.Strings(gaugeKeys)
	for _, key := range gaugeKeys {
		lines = append(lines, line(key, "", a.gauges[key], now))
	}

	counterKeys := make([]string, 0, len(a.counters))
	for k := range a.counters {
		counterKeys = append(counterKeys, k)
	}
	sort.Strings(counterKeys)
	for _, key := range counterKeys {
		c := a.counters[key]
		if c.samples == 0 {
			continue
		}
		value := "0"
		if c.sum != 0 {
			value = formatFloat(c.sum / flushInSeconds)
		}
		lines = append(lines, line(key, "", value, now))
		c.sum = 0
		c.samples = 0
	}

	return lines
}

// Counters returns a copy of the current counter accumulators.
func (a *MetricAggregator) Counters() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	result := make(map[string]float64, len(a.counters))
	for k, c := range a.counters {
		result[k] = c.sum
	}
	return result
}

// Gauges returns a copy of the last seen gauge values.
func (a *MetricAggregator) Gauges() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	result := make(map[string]string, len(a.gauges))
	for k, v := range a.gauges {
		result[k] = v
	}
	return result
}

// Timers returns a copy of the timer samples collected since the last report.
func (a *MetricAggregator) Timers() map[string][]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	result := make(map[string][]float64, len(a.timers))
	for k, v := range a.timers {
		result[k] = append([]float64{}, v...)
	}
	return result
}

// GetStats returns lifetime statistics. Safe for concurrent use.
func (a *MetricAggregator) GetStats() AggregatorStats {
	return AggregatorStats{
		Processed: atomic.LoadUint64(&a.processed),
		BadLines:  atomic.LoadUint64(&a.badLines),
	}
}

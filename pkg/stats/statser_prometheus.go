package stats

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStatser is a Statser that exposes internal metrics for scraping.  Collectors are created
// on first use, with dots in names replaced by underscores.
type PrometheusStatser struct {
	namespace  string
	registerer prometheus.Registerer

	mu         sync.Mutex
	gauges     map[string]prometheus.Gauge
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
}

// NewPrometheusStatser creates a Statser registering its collectors with registerer.
func NewPrometheusStatser(namespace string, registerer prometheus.Registerer) *PrometheusStatser {
	return &PrometheusStatser{
		namespace:  namespace,
		registerer: registerer,
		gauges:     map[string]prometheus.Gauge{},
		counters:   map[string]prometheus.Counter{},
		histograms: map[string]prometheus.Histogram{},
	}
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

// register returns the collector already registered under the same name if there is one.
func (ps *PrometheusStatser) register(c prometheus.Collector) prometheus.Collector {
	if err := ps.registerer.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}

func (ps *PrometheusStatser) gauge(name string) prometheus.Gauge {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	g, ok := ps.gauges[name]
	if !ok {
		g = ps.register(prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ps.namespace,
			Name:      promName(name),
			Help:      "Internal gauge " + name,
		})).(prometheus.Gauge)
		ps.gauges[name] = g
	}
	return g
}

func (ps *PrometheusStatser) counter(name string) prometheus.Counter {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	c, ok := ps.counters[name]
	if !ok {
		c = ps.register(prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ps.namespace,
			Name:      promName(name) + "_total",
			Help:      "Internal counter " + name,
		})).(prometheus.Counter)
		ps.counters[name] = c
	}
	return c
}

func (ps *PrometheusStatser) histogram(name string) prometheus.Histogram {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	h, ok := ps.histograms[name]
	if !ok {
		h = ps.register(prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ps.namespace,
			Name:      promName(name) + "_seconds",
			Help:      "Internal timing " + name,
			Buckets:   prometheus.DefBuckets,
		})).(prometheus.Histogram)
		ps.histograms[name] = h
	}
	return h
}

// Gauge sets a gauge metric
func (ps *PrometheusStatser) Gauge(name string, value float64) {
	ps.gauge(name).Set(value)
}

// Count adds to a counter metric.  Negative amounts are ignored.
func (ps *PrometheusStatser) Count(name string, amount float64) {
	if amount < 0 {
		return
	}
	ps.counter(name).Add(amount)
}

// Increment adds one to a counter metric
func (ps *PrometheusStatser) Increment(name string) {
	ps.counter(name).Inc()
}

// TimingDuration observes a duration
func (ps *PrometheusStatser) TimingDuration(name string, d time.Duration) {
	ps.histogram(name).Observe(d.Seconds())
}

// NewTimer returns a new timer with time set to now
func (ps *PrometheusStatser) NewTimer(name string) *Timer {
	return newTimer(ps, name)
}

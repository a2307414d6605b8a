package pencil

// MetricType is an enumeration of all the possible types of Sample.
type MetricType byte

const (
	_ = iota
	// COUNTER is statsd counter type
	COUNTER MetricType = iota
	// TIMER is statsd timer type
	TIMER
	// GAUGE is statsd gauge type
	GAUGE
)

func (m MetricType) String() string {
	switch m {
	case GAUGE:
		return "gauge"
	case TIMER:
		return "timer"
	case COUNTER:
		return "counter"
	}
	return "unknown"
}

// Sample is a single parsed datapoint.
type Sample struct {
	Key   string     // The name of the metric
	Value float64    // The numeric value, unset for gauges
	Raw   string     // The value exactly as it was received
	Type  MetricType // The type of metric
}

package stats

import (
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingStatser is a Statser which emits logs
type LoggingStatser struct {
	logger logrus.FieldLogger
}

// NewLoggingStatser creates a new Statser which sends metrics to the
// supplied logger at debug level.
func NewLoggingStatser(logger logrus.FieldLogger) Statser {
	return &LoggingStatser{
		logger: logger,
	}
}

// Gauge sends a gauge metric
func (ls *LoggingStatser) Gauge(name string, value float64) {
	ls.logger.WithFields(logrus.Fields{
		"name":  name,
		"value": value,
	}).Debug("gauge")
}

// Count sends a counter metric
func (ls *LoggingStatser) Count(name string, amount float64) {
	ls.logger.WithFields(logrus.Fields{
		"name":   name,
		"amount": amount,
	}).Debug("count")
}

// Increment sends a counter metric with a value of 1
func (ls *LoggingStatser) Increment(name string) {
	ls.Count(name, 1)
}

// TimingDuration sends a timing metric from a time.Duration
func (ls *LoggingStatser) TimingDuration(name string, d time.Duration) {
	ls.logger.WithFields(logrus.Fields{
		"name": name,
		"ms":   float64(d) / float64(time.Millisecond),
	}).Debug("timing")
}

// NewTimer returns a new timer with time set to now
func (ls *LoggingStatser) NewTimer(name string) *Timer {
	return newTimer(ls, name)
}

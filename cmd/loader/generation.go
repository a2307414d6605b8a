package main

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync/atomic"
)

type metricData struct {
	count           uint64 // atomic, remaining to send
	nameFormat      string
	nameCardinality uint
	valueLimit      uint
}

type metricGenerator struct {
	rnd        *rand.Rand
	sampleRate string // "" if lines are not annotated

	counters metricData
	gauges   metricData
	timers   metricData
}

func newMetricGenerator(opts commandOptions, rnd *rand.Rand) *metricGenerator {
	workers := uint64(opts.Workers)
	mg := &metricGenerator{
		rnd: rnd,
		counters: metricData{
			nameFormat:      fmt.Sprintf("%scounter%s", opts.MetricPrefix, opts.MetricSuffix),
			count:           opts.Counts.Counter / workers,
			nameCardinality: opts.NameCard.Counter,
			valueLimit:      opts.ValueRange.Counter,
		},
		gauges: metricData{
			nameFormat:      fmt.Sprintf("%sgauge%s", opts.MetricPrefix, opts.MetricSuffix),
			count:           opts.Counts.Gauge / workers,
			nameCardinality: opts.NameCard.Gauge,
			valueLimit:      opts.ValueRange.Gauge,
		},
		timers: metricData{
			nameFormat:      fmt.Sprintf("%stimer%s", opts.MetricPrefix, opts.MetricSuffix),
			count:           opts.Counts.Timer / workers,
			nameCardinality: opts.NameCard.Timer,
			valueLimit:      opts.ValueRange.Timer,
		},
	}
	if opts.SampleRate > 0 {
		mg.sampleRate = strconv.FormatFloat(opts.SampleRate, 'f', -1, 64)
	}
	return mg
}

func (md *metricData) genName(sb *strings.Builder, r *rand.Rand) {
	card := int(md.nameCardinality)
	if card < 1 {
		card = 1
	}
	sb.WriteString(fmt.Sprintf(md.nameFormat, r.Intn(card)))
	sb.WriteByte(':')
}

func (mg *metricGenerator) endLine(sb *strings.Builder) {
	if mg.sampleRate != "" {
		sb.WriteString("|@")
		sb.WriteString(mg.sampleRate)
	}
	sb.WriteByte('\n')
}

func (mg *metricGenerator) nextCounter(sb *strings.Builder) {
	atomic.AddUint64(&mg.counters.count, ^uint64(0))
	mg.counters.genName(sb, mg.rnd)
	sb.WriteString(strconv.Itoa(1 + mg.rnd.Intn(int(mg.counters.valueLimit+1))))
	sb.WriteString("|c")
	mg.endLine(sb)
}

func (mg *metricGenerator) nextGauge(sb *strings.Builder) {
	atomic.AddUint64(&mg.gauges.count, ^uint64(0))
	mg.gauges.genName(sb, mg.rnd)
	sb.WriteString(strconv.Itoa(mg.rnd.Intn(int(mg.gauges.valueLimit) + 1)))
	sb.WriteString("|g")
	mg.endLine(sb)
}

func (mg *metricGenerator) nextTimer(sb *strings.Builder) {
	atomic.AddUint64(&mg.timers.count, ^uint64(0))
	mg.timers.genName(sb, mg.rnd)
	sb.WriteString(strconv.FormatFloat(mg.rnd.Float64()*float64(mg.timers.valueLimit), 'f', -1, 64))
	sb.WriteString("|ms")
	mg.endLine(sb)
}

// next writes one line to sb, or returns false when everything has been generated.
func (mg *metricGenerator) next(sb *strings.Builder) bool {
	// We can safely read these non-atomically, because this goroutine is the only one that writes to them.
	total := mg.counters.count + mg.gauges.count + mg.timers.count
	if total == 0 {
		return false
	}

	n := uint64(mg.rnd.Int63n(int64(total)))
	if n < mg.counters.count {
		mg.nextCounter(sb)
	} else if n < mg.counters.count+mg.gauges.count {
		mg.nextGauge(sb)
	} else {
		mg.nextTimer(sb)
	}
	return true
}

// remaining returns the number of counters, gauges and timers still to be generated.
func (mg *metricGenerator) remaining() (uint64, uint64, uint64) {
	return atomic.LoadUint64(&mg.counters.count), atomic.LoadUint64(&mg.gauges.count), atomic.LoadUint64(&mg.timers.count)
}

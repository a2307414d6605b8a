package stats

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestFromContextDefaultsToNull(t *testing.T) {
	t.Parallel()
	require.IsType(t, &NullStatser{}, FromContext(context.Background()))
}

func TestFromContextReturnsAttached(t *testing.T) {
	t.Parallel()
	ps := NewPrometheusStatser("pencil", prometheus.NewRegistry())
	ctx := NewContext(context.Background(), ps)
	require.Equal(t, Statser(ps), FromContext(ctx))
}

func TestPrometheusStatser(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	ps := NewPrometheusStatser("pencil", reg)

	ps.Gauge("backlog.batches", 3)
	ps.Gauge("backlog.batches", 5)
	ps.Increment("aggregator.bad_lines")
	ps.Count("aggregator.bad_lines", 2)
	ps.Count("aggregator.bad_lines", -1)
	ps.TimingDuration("flusher.total_time", 10*time.Millisecond)
	ps.NewTimer("flusher.total_time").Send()

	require.Equal(t, 5.0, testutil.ToFloat64(ps.gauge("backlog.batches")))
	require.Equal(t, 3.0, testutil.ToFloat64(ps.counter("aggregator.bad_lines")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["pencil_backlog_batches"])
	require.True(t, names["pencil_aggregator_bad_lines_total"])
	require.True(t, names["pencil_flusher_total_time_seconds"])
}

func TestPrometheusStatserSharesRegistry(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	a := NewPrometheusStatser("pencil", reg)
	b := NewPrometheusStatser("pencil", reg)
	a.Increment("x")
	b.Increment("x")
	require.Equal(t, 2.0, testutil.ToFloat64(a.counter("x")))
}

package pencil

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestAddFlags(t *testing.T) {
	require.NotPanics(t, func() {
		fs := &pflag.FlagSet{}
		AddFlags(fs)
	})
}

func TestLegacyParamNamesAreFlags(t *testing.T) {
	fs := &pflag.FlagSet{}
	AddFlags(fs)
	for legacy, current := range LegacyParamNames {
		require.NotNil(t, fs.Lookup(current), "legacy name %s maps to unknown flag %s", legacy, current)
	}
}

func TestMetricTypeString(t *testing.T) {
	t.Parallel()
	require.Equal(t, "counter", COUNTER.String())
	require.Equal(t, "gauge", GAUGE.String())
	require.Equal(t, "timer", TIMER.String())
	require.Equal(t, "unknown", MetricType(0).String())
}

package statsd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pencil-metrics/pencil"
)

func TestParseLineValid(t *testing.T) {
	t.Parallel()
	input := map[string]pencil.Sample{
		"foo:1|c":            {Key: "foo", Value: 1, Raw: "1", Type: pencil.COUNTER},
		"foo:1.5|c|@0.1":     {Key: "foo", Value: 1.5, Raw: "1.5", Type: pencil.COUNTER},
		"foo:-2|c":           {Key: "foo", Value: -2, Raw: "-2", Type: pencil.COUNTER},
		"foo:3|x":            {Key: "foo", Value: 3, Raw: "3", Type: pencil.COUNTER},
		"foo:320|ms":         {Key: "foo", Value: 320, Raw: "320", Type: pencil.TIMER},
		"foo:320|ms ":        {Key: "foo", Value: 320, Raw: "320", Type: pencil.TIMER},
		"foo:5|g":            {Key: "foo", Raw: "5", Type: pencil.GAUGE},
		"foo:not-a-number|g": {Key: "foo", Raw: "not-a-number", Type: pencil.GAUGE},
		":1|c":               {Key: "", Value: 1, Raw: "1", Type: pencil.COUNTER},
	}
	for line, expected := range input {
		line := line
		expected := expected
		t.Run(line, func(t *testing.T) {
			t.Parallel()
			s, err := ParseLine(line)
			require.NoError(t, err)
			assert.Equal(t, expected, s)
		})
	}
}

func TestParseLineSplitsOnFirstColon(t *testing.T) {
	t.Parallel()
	s, err := ParseLine("a:b:1|g")
	require.NoError(t, err)
	assert.Equal(t, "a", s.Key)
	assert.Equal(t, "b:1", s.Raw)

	_, err = ParseLine("a:b:1|c")
	assert.ErrorIs(t, err, ErrMalformedLine)
}

func TestParseLineInvalid(t *testing.T) {
	t.Parallel()
	input := []string{
		"abc",
		"",
		"foo",
		"foo:1",
		"foo|c",
		"foo:abc|c",
		"foo:|ms",
		"foo:1,5|ms",
		"foo:nan|c",
		"foo:NaN|ms",
		"bar:inf|ms",
		"bar:+Inf|c",
		"bar:-inf|c",
	}
	for _, line := range input {
		line := line
		t.Run(line, func(t *testing.T) {
			t.Parallel()
			_, err := ParseLine(line)
			assert.ErrorIs(t, err, ErrMalformedLine)
		})
	}
}

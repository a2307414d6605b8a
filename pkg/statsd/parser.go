package statsd

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pencil-metrics/pencil"
)

// ErrMalformedLine is returned for lines that are not of the form key:value|type.
var ErrMalformedLine = errors.New("malformed line")

const (
	typeTimer = "ms"
	typeGauge = "g"
)

// ParseLine parses a single raw message of the form key:value|type[|@rate].  The sample rate is
// accepted but not applied.
func ParseLine(line string) (pencil.Sample, error) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return pencil.Sample{}, fmt.Errorf("%w: missing ':'", ErrMalformedLine)
	}
	key := line[:idx]
	fields := strings.Split(line[idx+1:], "|")
	if len(fields) < 2 {
		return pencil.Sample{}, fmt.Errorf("%w: missing type", ErrMalformedLine)
	}

	s := pencil.Sample{
		Key: key,
		Raw: fields[0],
	}
	switch strings.TrimSpace(fields[1]) {
	case typeTimer:
		s.Type = pencil.TIMER
	case typeGauge:
		s.Type = pencil.GAUGE
		return s, nil
	default:
		s.Type = pencil.COUNTER
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return pencil.Sample{}, fmt.Errorf("%w: invalid %s value %q", ErrMalformedLine, s.Type, fields[0])
	}
	s.Value = value
	return s, nil
}

//go:build gofuzz
// +build gofuzz

package statsd

import (
	"fmt"

	"github.com/pencil-metrics/pencil"
)

func Fuzz(data []byte) int {
	s, err := ParseLine(string(data))
	if err != nil {
		return 0
	}
	switch s.Type {
	case pencil.COUNTER, pencil.GAUGE, pencil.TIMER:
		return 1
	}
	panic(fmt.Errorf("unexpected sample: %+v", s))
}

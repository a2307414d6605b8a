package main

import (
	"errors"
	"io"

	"github.com/jessevdk/go-flags"
)

type commandOptions struct {
	Target       string  `short:"a" long:"address"             default:"127.0.0.1:8125" description:"Address to send metrics"                     `
	MetricPrefix string  `short:"p" long:"metric-prefix"       default:"loadtest."      description:"Metric name prefix"                          `
	MetricSuffix string  `          long:"metric-suffix"       default:".%d"            description:"Metric suffix with cardinality marker"       `
	Rate         uint    `short:"r" long:"rate"                default:"1000"           description:"Target packets per second"                   `
	DatagramSize uint    `          long:"buffer-size"         default:"1500"           description:"Maximum size of datagram to send"            `
	Workers      uint    `short:"w" long:"workers"             default:"1"              description:"Number of parallel workers to use"           `
	SampleRate   float64 `          long:"sample-rate"         default:"0"              description:"Sample rate to annotate lines with, 0 for none"`
	Counts       struct {
		Counter uint64 ` short:"c" long:"counter-count"                                description:"Number of counters to send"                  `
		Gauge   uint64 ` short:"g" long:"gauge-count"                                  description:"Number of gauges to send"                    `
		Timer   uint64 ` short:"t" long:"timer-count"                                  description:"Number of timers to send"                    `
	} `group:"Metric count"`
	NameCard struct {
		Counter uint `             long:"counter-cardinality" default:"1"              description:"Cardinality of counter names"                `
		Gauge   uint `             long:"gauge-cardinality"   default:"1"              description:"Cardinality of gauges names"                 `
		Timer   uint `             long:"timer-cardinality"   default:"1"              description:"Cardinality of timer names"                 `
	} `group:"Name cardinality"`
	ValueRange struct {
		Counter uint `             long:"counter-value-limit" default:"0"              description:"Maximum value of counters minus one"         `
		Gauge   uint `             long:"gauge-value-limit"   default:"1"              description:"Maximum value of gauges"                     `
		Timer   uint `             long:"timer-value-limit"   default:"1"              description:"Maximum value of timers"                     `
	} `group:"Value range"`
}

var errNothingToSend = errors.New("at least one of counter-count, gauge-count, or timer-count must be non-zero")

// parseArgs parses args.  help is true if the help message was requested, in which case it has been written
// to out.
func parseArgs(args []string, out io.Writer) (opts commandOptions, help bool, err error) {
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.LongDescription = "" + // because gofmt
		"Sends random counters, gauges and timers to a pencil server over UDP.  The maximum number of\n" +
		"distinct names per type is set by its cardinality."

	positional, err := parser.ParseArgs(args)
	if err != nil {
		if isHelp(err) {
			parser.WriteHelp(out)
			return opts, true, nil
		}
		return opts, false, err
	}

	if len(positional) != 0 {
		// Near as I can tell there's no way to say no positional arguments allowed.
		return opts, false, errors.New("no positional arguments allowed")
	}
	if opts.Counts.Counter+opts.Counts.Gauge+opts.Counts.Timer == 0 {
		return opts, false, errNothingToSend
	}
	if opts.Workers == 0 || opts.Rate < opts.Workers {
		return opts, false, errors.New("workers must be positive and rate at least one packet per second per worker")
	}
	if opts.SampleRate < 0 || opts.SampleRate > 1 {
		return opts, false, errors.New("sample-rate must be between 0 and 1")
	}
	return opts, false, nil
}

// isHelp is a helper to test the error from ParseArgs() to
// determine if the help message was requested. It is safe to
// call without first checking that error is nil.
func isHelp(err error) bool {
	var flagError *flags.Error
	if !errors.As(err, &flagError) { // Not a go-flag error
		return false
	}
	return flagError.Type == flags.ErrHelp
}

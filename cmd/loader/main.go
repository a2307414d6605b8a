package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/sirupsen/logrus"
)

func main() {
	opts, help, err := parseArgs(os.Args[1:], os.Stdout)
	if err != nil {
		logrus.Fatalf("Error parsing command line: %v", err)
	}
	if help {
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	generators := make([]*metricGenerator, 0, opts.Workers)
	for i := uint(0); i < opts.Workers; i++ {
		generators = append(generators, newMetricGenerator(opts, rand.New(rand.NewSource(rand.Int63())))) // #nosec
	}

	var wg wait.Group
	for _, generator := range generators {
		generator := generator
		wg.StartWithContext(ctx, func(ctx context.Context) {
			s, err := net.DialTimeout("udp", opts.Target, 1*time.Second)
			if err != nil {
				logrus.WithError(err).Error("Failed to open socket")
				cancel()
				return
			}
			defer s.Close()
			sendMetrics(ctx, s, opts.DatagramSize, opts.Rate/opts.Workers, generator)
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	statusTicker := time.NewTicker(1 * time.Second)
	defer statusTicker.Stop()
	for {
		select {
		case <-done:
			return
		case <-statusTicker.C:
			var counters, gauges, timers uint64
			for _, mg := range generators {
				c, g, t := mg.remaining()
				counters += c
				gauges += g
				timers += t
			}
			fmt.Printf("%d counters, %d gauges, %d timers left\n", counters, gauges, timers)
		}
	}
}

// sendMetrics packs generated lines into datagrams of at most bufSize bytes and writes them to w, at rate
// datagrams per second, until the generator is exhausted or ctx is done.
func sendMetrics(ctx context.Context, w io.Writer, bufSize uint, rate uint, generator *metricGenerator) {
	b := &bytes.Buffer{}
	interval := time.Second / time.Duration(rate)
	next := time.Now().Add(interval)

	sb := &strings.Builder{}
	for ctx.Err() == nil && generator.next(sb) {
		if b.Len() > 0 && uint(b.Len()+sb.Len()) > bufSize {
			if timeToFlush := time.Until(next); timeToFlush > 0 {
				time.Sleep(timeToFlush)
			}
			if _, err := w.Write(b.Bytes()); err != nil {
				logrus.WithError(err).Warn("Pausing for 1 second, error sending packet")
				time.Sleep(1 * time.Second)
			}
			b.Reset()
			next = next.Add(interval)
		}
		b.WriteString(sb.String())
		sb.Reset()
	}

	if b.Len() > 0 {
		if _, err := w.Write(b.Bytes()); err != nil {
			logrus.WithError(err).Error("Error sending last packet")
		}
	}
}
